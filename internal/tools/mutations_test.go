package tools_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

// editFake serves the edit-session plumbing: insert returns a fixed edit id,
// commit acknowledges, and everything else is delegated.
type editFake struct {
	editID string
	calls  []string // "METHOD path?query"
	bodies []map[string]any
	handle func(w http.ResponseWriter, r *http.Request, body map[string]any) bool
}

func newEditFake(t *testing.T) *editFake {
	t.Helper()
	return &editFake{editID: "edit-1"}
}

func (f *editFake) handler(w http.ResponseWriter, r *http.Request) {
	call := r.Method + " " + r.URL.Path
	if r.URL.RawQuery != "" {
		call += "?" + r.URL.RawQuery
	}
	f.calls = append(f.calls, call)

	var body map[string]any
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		json.Unmarshal(raw, &body)
	}
	f.bodies = append(f.bodies, body)

	switch {
	case strings.HasSuffix(r.URL.Path, "/edits"):
		json.NewEncoder(w).Encode(map[string]string{"id": f.editID})
	case strings.HasSuffix(r.URL.Path, ":commit"):
		json.NewEncoder(w).Encode(map[string]string{"id": f.editID})
	default:
		if f.handle != nil && f.handle(w, r, body) {
			return
		}
		w.Write([]byte(`{}`))
	}
}

func TestPatchListing_PatchesAndCommits(t *testing.T) {
	fake := newEditFake(t)
	fake.handle = func(w http.ResponseWriter, r *http.Request, body map[string]any) bool {
		json.NewEncoder(w).Encode(map[string]string{"language": "en-US", "title": body["title"].(string)})
		return true
	}
	catalog, _ := newCatalog(t, fake.handler)

	payload, err := catalog.Dispatch(context.Background(), "patch_listing", map[string]any{
		"package_name": "com.example.app",
		"language":     "en-US",
		"title":        "New Title",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"POST /publisher/applications/com.example.app/edits",
		"PATCH /publisher/applications/com.example.app/edits/edit-1/listings/en-US",
		"POST /publisher/applications/com.example.app/edits/edit-1:commit",
	}
	if len(fake.calls) != 3 {
		t.Fatalf("unexpected call sequence %v", fake.calls)
	}
	for i := range want {
		if fake.calls[i] != want[i] {
			t.Fatalf("call %d: expected %q, got %q", i, want[i], fake.calls[i])
		}
	}
	// Only the provided field goes on the wire.
	patch := fake.bodies[1]
	if patch["title"] != "New Title" || len(patch) != 1 {
		t.Fatalf("unexpected patch body %v", patch)
	}

	var got struct {
		Title string `json:"title"`
	}
	roundTrip(t, payload, &got)
	if got.Title != "New Title" {
		t.Fatalf("patched listing not returned: %v", payload)
	}
}

func TestPatchListing_RequiresAField(t *testing.T) {
	catalog, calls := newCatalog(t, nil)

	_, err := catalog.Dispatch(context.Background(), "patch_listing", map[string]any{
		"package_name": "com.example.app",
		"language":     "en-US",
	})
	wantValidation(t, err, "title")
	if calls.Load() != 0 {
		t.Fatal("an empty patch must not open an edit")
	}
}

func TestUpdateListing_FullReplace(t *testing.T) {
	fake := newEditFake(t)
	catalog, _ := newCatalog(t, fake.handler)

	_, err := catalog.Dispatch(context.Background(), "update_listing", map[string]any{
		"package_name":      "com.example.app",
		"language":          "de-DE",
		"title":             "Beispiel",
		"short_description": "Kurz",
		"full_description":  "Lang",
	})
	if err != nil {
		t.Fatal(err)
	}

	if fake.calls[1] != "PUT /publisher/applications/com.example.app/edits/edit-1/listings/de-DE" {
		t.Fatalf("expected a full update, got %q", fake.calls[1])
	}
	body := fake.bodies[1]
	if body["title"] != "Beispiel" || body["shortDescription"] != "Kurz" || body["fullDescription"] != "Lang" {
		t.Fatalf("unexpected update body %v", body)
	}
	if _, ok := body["video"]; ok {
		t.Fatal("absent video must not be sent")
	}
}

func TestUpdateListing_MissingRequiredText(t *testing.T) {
	catalog, calls := newCatalog(t, nil)

	_, err := catalog.Dispatch(context.Background(), "update_listing", map[string]any{
		"package_name": "com.example.app",
		"language":     "de-DE",
		"title":        "Beispiel",
	})
	wantValidation(t, err, "short_description")
	if calls.Load() != 0 {
		t.Fatal("schema validation must precede the edit")
	}
}

func TestCommit_ChangesNotSentForReviewFlag(t *testing.T) {
	fake := newEditFake(t)
	catalog, _ := newCatalog(t, fake.handler)

	_, err := catalog.Dispatch(context.Background(), "patch_listing", map[string]any{
		"package_name":                "com.example.app",
		"language":                    "en-US",
		"title":                       "New Title",
		"changes_not_sent_for_review": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	commit := fake.calls[len(fake.calls)-1]
	if !strings.Contains(commit, ":commit?changesNotSentForReview=true") {
		t.Fatalf("flag not forwarded to commit: %q", commit)
	}
}

func TestImagesList_PathShape(t *testing.T) {
	fake := newEditFake(t)
	fake.handle = func(w http.ResponseWriter, r *http.Request, body map[string]any) bool {
		w.Write([]byte(`{"images":[{"id":"img-1","url":"https://lh3.example/img-1"}]}`))
		return true
	}
	catalog, _ := newCatalog(t, fake.handler)

	payload, err := catalog.Dispatch(context.Background(), "images_list", map[string]any{
		"package_name": "com.example.app",
		"language":     "en-US",
		"image_type":   "phoneScreenshots",
	})
	if err != nil {
		t.Fatal(err)
	}
	if fake.calls[1] != "GET /publisher/applications/com.example.app/edits/edit-1/listings/en-US/phoneScreenshots" {
		t.Fatalf("unexpected path %q", fake.calls[1])
	}
	if len(fake.calls) != 2 {
		t.Fatalf("a read must not commit, got %v", fake.calls)
	}
	var got struct {
		Images []struct {
			ID string `json:"id"`
		} `json:"images"`
	}
	roundTrip(t, payload, &got)
	if len(got.Images) != 1 || got.Images[0].ID != "img-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestImagesDeleteAll_DeletesAndCommits(t *testing.T) {
	fake := newEditFake(t)
	catalog, _ := newCatalog(t, fake.handler)

	_, err := catalog.Dispatch(context.Background(), "images_deleteall", map[string]any{
		"package_name": "com.example.app",
		"language":     "en-US",
		"image_type":   "icon",
	})
	if err != nil {
		t.Fatal(err)
	}
	if fake.calls[1] != "DELETE /publisher/applications/com.example.app/edits/edit-1/listings/en-US/icon" {
		t.Fatalf("unexpected path %q", fake.calls[1])
	}
	if !strings.HasSuffix(fake.calls[2], ":commit") {
		t.Fatalf("deletion must commit, got %v", fake.calls)
	}
}

func TestImages_InvalidImageType(t *testing.T) {
	catalog, calls := newCatalog(t, nil)

	for _, tool := range []string{"images_list", "images_deleteall"} {
		_, err := catalog.Dispatch(context.Background(), tool, map[string]any{
			"package_name": "com.example.app",
			"language":     "en-US",
			"image_type":   "bannerScreenshots",
		})
		wantValidation(t, err, "image_type")
	}
	if calls.Load() != 0 {
		t.Fatal("unknown image types must be rejected before the edit")
	}
}

func TestDetailsGet(t *testing.T) {
	fake := newEditFake(t)
	fake.handle = func(w http.ResponseWriter, r *http.Request, body map[string]any) bool {
		w.Write([]byte(`{"defaultLanguage":"en-US","contactEmail":"dev@example.com"}`))
		return true
	}
	catalog, _ := newCatalog(t, fake.handler)

	payload, err := catalog.Dispatch(context.Background(), "details_get", map[string]any{
		"package_name": "com.example.app",
	})
	if err != nil {
		t.Fatal(err)
	}
	if fake.calls[1] != "GET /publisher/applications/com.example.app/edits/edit-1/details" {
		t.Fatalf("unexpected path %q", fake.calls[1])
	}
	var got struct {
		DefaultLanguage string `json:"defaultLanguage"`
	}
	roundTrip(t, payload, &got)
	if got.DefaultLanguage != "en-US" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestDetailsUpdate_SendsOnlyProvidedFields(t *testing.T) {
	fake := newEditFake(t)
	catalog, _ := newCatalog(t, fake.handler)

	_, err := catalog.Dispatch(context.Background(), "details_update", map[string]any{
		"package_name":  "com.example.app",
		"contact_email": "support@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if fake.calls[1] != "PUT /publisher/applications/com.example.app/edits/edit-1/details" {
		t.Fatalf("unexpected path %q", fake.calls[1])
	}
	body := fake.bodies[1]
	if body["contactEmail"] != "support@example.com" || len(body) != 1 {
		t.Fatalf("unexpected body %v", body)
	}
	if !strings.HasSuffix(fake.calls[2], ":commit") {
		t.Fatalf("update must commit, got %v", fake.calls)
	}
}

func TestDetailsUpdate_RequiresAField(t *testing.T) {
	catalog, calls := newCatalog(t, nil)

	_, err := catalog.Dispatch(context.Background(), "details_update", map[string]any{
		"package_name": "com.example.app",
	})
	wantValidation(t, err, "default_language")
	if calls.Load() != 0 {
		t.Fatal("an empty update must not open an edit")
	}
}

func TestListLocaleCoverage(t *testing.T) {
	fake := newEditFake(t)
	fake.handle = func(w http.ResponseWriter, r *http.Request, body map[string]any) bool {
		w.Write([]byte(`{"listings":[{"language":"en-US"},{"language":"de-DE"},{"language":"en-US"}]}`))
		return true
	}
	catalog, _ := newCatalog(t, fake.handler)

	payload, err := catalog.Dispatch(context.Background(), "list_locale_coverage", map[string]any{
		"package_name":   "com.example.app",
		"target_locales": "en-US, fr-FR, de-DE",
	})
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		Present []string `json:"present_locales"`
		Count   int      `json:"count"`
		Missing []string `json:"missing_from_targets"`
		Extra   []string `json:"extra_vs_targets"`
	}
	roundTrip(t, payload, &got)
	if got.Count != 2 || len(got.Present) != 2 || got.Present[0] != "de-DE" || got.Present[1] != "en-US" {
		t.Fatalf("expected deduplicated sorted locales, got %+v", got)
	}
	if len(got.Missing) != 1 || got.Missing[0] != "fr-FR" {
		t.Fatalf("unexpected missing set %v", got.Missing)
	}
	if len(got.Extra) != 0 {
		t.Fatalf("unexpected extra set %v", got.Extra)
	}
}

func TestCloneListingToLocale(t *testing.T) {
	fake := newEditFake(t)
	fake.handle = func(w http.ResponseWriter, r *http.Request, body map[string]any) bool {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"language":"en-US","title":"Example","shortDescription":"Short","fullDescription":"Full","video":"https://youtu.be/x"}`))
			return true
		}
		json.NewEncoder(w).Encode(body)
		return true
	}
	catalog, _ := newCatalog(t, fake.handler)

	payload, err := catalog.Dispatch(context.Background(), "clone_listing_to_locale", map[string]any{
		"package_name": "com.example.app",
		"src_language": "en-US",
		"dst_language": "en-GB",
		"copy_video":   false,
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"POST /publisher/applications/com.example.app/edits",
		"GET /publisher/applications/com.example.app/edits/edit-1/listings/en-US",
		"PUT /publisher/applications/com.example.app/edits/edit-1/listings/en-GB",
		"POST /publisher/applications/com.example.app/edits/edit-1:commit",
	}
	for i := range want {
		if fake.calls[i] != want[i] {
			t.Fatalf("call %d: expected %q, got %q", i, want[i], fake.calls[i])
		}
	}
	put := fake.bodies[2]
	if put["title"] != "Example" || put["shortDescription"] != "Short" || put["fullDescription"] != "Full" {
		t.Fatalf("text not copied: %v", put)
	}
	if _, ok := put["video"]; ok {
		t.Fatal("video copied despite copy_video=false")
	}

	var got struct {
		Dst struct {
			Title string `json:"title"`
		} `json:"dst_listing"`
	}
	roundTrip(t, payload, &got)
	if got.Dst.Title != "Example" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestCloneListingToLocale_SameLocale(t *testing.T) {
	catalog, calls := newCatalog(t, nil)

	_, err := catalog.Dispatch(context.Background(), "clone_listing_to_locale", map[string]any{
		"package_name": "com.example.app",
		"src_language": "en-US",
		"dst_language": "en-US",
	})
	wantValidation(t, err, "dst_language")
	if calls.Load() != 0 {
		t.Fatal("cloning onto itself must be rejected before the edit")
	}
}

func TestCreateListingExperiment(t *testing.T) {
	fake := newEditFake(t)
	catalog, _ := newCatalog(t, fake.handler)

	_, err := catalog.Dispatch(context.Background(), "create_listing_experiment", map[string]any{
		"package_name":  "com.example.app",
		"experiment_id": "exp-title-v2",
		"variant_id":    "variant-b",
	})
	if err != nil {
		t.Fatal(err)
	}
	if fake.calls[1] != "POST /publisher/applications/com.example.app/edits/edit-1/experiments" {
		t.Fatalf("unexpected path %q", fake.calls[1])
	}
	body := fake.bodies[1]
	if body["experimentId"] != "exp-title-v2" || body["type"] != "STORE_LISTING" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["trafficPercent"] != float64(50) {
		t.Fatalf("expected the 50%% default, got %v", body["trafficPercent"])
	}
	variants, _ := body["variants"].([]any)
	if len(variants) != 1 {
		t.Fatalf("expected one variant, got %v", body["variants"])
	}
	if !strings.HasSuffix(fake.calls[2], ":commit") {
		t.Fatalf("experiment creation must commit, got %v", fake.calls)
	}
}

func TestCreateListingExperiment_TrafficBounds(t *testing.T) {
	catalog, calls := newCatalog(t, nil)

	for _, pct := range []float64{0, 101, -5} {
		_, err := catalog.Dispatch(context.Background(), "create_listing_experiment", map[string]any{
			"package_name":    "com.example.app",
			"experiment_id":   "exp",
			"variant_id":      "v",
			"traffic_percent": pct,
		})
		wantValidation(t, err, "traffic_percent")
	}
	if calls.Load() != 0 {
		t.Fatal("out-of-range traffic must be rejected before the edit")
	}
}
