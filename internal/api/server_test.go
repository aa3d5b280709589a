package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/voicevault/voicevault/internal/api/middleware"
	"github.com/voicevault/voicevault/internal/database"
	"github.com/voicevault/voicevault/internal/database/models"
	"github.com/voicevault/voicevault/internal/retention"
	"github.com/voicevault/voicevault/internal/storage"
)

var testJWTSecret = []byte("server-test-secret")

type testEnv struct {
	server     *Server
	recordings database.RecordingRepository
	policies   database.RetentionPolicyRepository
	audit      database.AuditRepository
	engine     *storage.Engine
	tracker    *storage.Tracker
	baseDir    string
	token      string
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvQuota(t, 1<<30)
}

func newTestEnvQuota(t *testing.T, quotaBytes int64) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	recordings := database.NewRecordingRepository(db)
	policies := database.NewRetentionPolicyRepository(db)
	usage := database.NewUsageRepository(db)
	audit := database.NewAuditRepository(db)

	tracker := storage.NewTracker(quotaBytes, usage, logger)
	enc, err := storage.NewEncryptor(bytes.Repeat([]byte{0x24}, 32), "primary")
	if err != nil {
		t.Fatalf("creating encryptor: %v", err)
	}
	baseDir := t.TempDir()
	engine, err := storage.NewEngine(baseDir, enc, tracker, logger)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}

	limiter := middleware.NewIPRateLimiter(middleware.RateLimitConfig{
		Rate: rate.Limit(1000), Burst: 1000,
		CleanupInterval: time.Hour, MaxAge: time.Hour,
	})
	t.Cleanup(limiter.Stop)

	metricsStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	token, _, err := middleware.GenerateToken(testJWTSecret, 7)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	resolver := retention.NewResolver(policies, 90, logger)

	return &testEnv{
		server:     NewServer(recordings, policies, usage, audit, engine, tracker, resolver, metricsStub, testJWTSecret, limiter),
		recordings: recordings,
		policies:   policies,
		audit:      audit,
		engine:     engine,
		tracker:    tracker,
		baseDir:    baseDir,
		token:      token,
	}
}

// storeRecording stores audio through the engine and creates the metadata row.
func (env *testEnv) storeRecording(t *testing.T, callID string, audio []byte, hold bool) *models.Recording {
	t.Helper()
	stored, err := env.engine.Store(callID, audio, "wav")
	if err != nil {
		t.Fatalf("storing file: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	rec := &models.Recording{
		ID:              "rec-" + callID,
		CallID:          callID,
		FilePath:        stored.RelativePath,
		FileSizeBytes:   stored.SizeBytes,
		DurationSeconds: 1.5,
		Format:          "wav",
		EncryptionKeyID: stored.KeyID,
		UploadedAt:      now,
		RetentionUntil:  now.AddDate(0, 0, 90),
		ComplianceHold:  hold,
	}
	if err := env.recordings.Create(context.Background(), rec); err != nil {
		t.Fatalf("creating recording row: %v", err)
	}
	return rec
}

func (env *testEnv) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.RemoteAddr = "203.0.113.9:4444"
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

// doUpload posts a multipart recording upload. An empty filename omits the
// file part entirely.
func (env *testEnv) doUpload(t *testing.T, filename string, audio []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("creating file part: %v", err)
		}
		if _, err := fw.Write(audio); err != nil {
			t.Fatalf("writing file part: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.RemoteAddr = "203.0.113.9:4444"
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v (body %s)", err, rec.Body.String())
	}
	if env.Error != "" {
		t.Fatalf("unexpected api error: %s", env.Error)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/v1/recordings",
		"/api/v1/retention-policies",
		"/api/v1/storage/stats",
		"/api/v1/audit",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestGetRecording(t *testing.T) {
	env := newTestEnv(t)
	stored := env.storeRecording(t, "call-1", []byte("fake-wav-bytes"), false)

	rec := env.do(t, http.MethodGet, "/api/v1/recordings/"+stored.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got recordingResponse
	decodeData(t, rec, &got)
	if got.ID != stored.ID || got.CallID != "call-1" {
		t.Errorf("got %+v", got)
	}
	if got.EncryptionKeyID != "primary" {
		t.Errorf("key id = %q", got.EncryptionKeyID)
	}
}

func TestGetRecordingNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/recordings/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDownloadRecordingDecryptsAndAudits(t *testing.T) {
	env := newTestEnv(t)
	audio := []byte("RIFF-pretend-audio-payload")
	stored := env.storeRecording(t, "call-dl", audio, false)

	rec := env.do(t, http.MethodGet, "/api/v1/recordings/"+stored.ID+"/audio", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(rec.Body.Bytes(), audio) {
		t.Error("downloaded audio does not match the original plaintext")
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "call_call-dl.wav") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	entries, err := env.audit.List(context.Background(), database.AuditListFilter{
		RecordingID: stored.ID, Action: models.AuditDownloaded,
	})
	if err != nil || len(entries) != 1 {
		t.Fatalf("download audit entries = (%v, %v), want 1", entries, err)
	}
	if entries[0].UserID == nil || *entries[0].UserID != 7 {
		t.Errorf("audit user = %v, want 7", entries[0].UserID)
	}
	if entries[0].IPAddress != "203.0.113.9" {
		t.Errorf("audit ip = %q", entries[0].IPAddress)
	}
}

func TestDeleteRecording(t *testing.T) {
	env := newTestEnv(t)
	stored := env.storeRecording(t, "call-del", []byte("bytes"), false)

	rec := env.do(t, http.MethodDelete, "/api/v1/recordings/"+stored.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := os.Stat(filepath.Join(env.baseDir, stored.FilePath)); !os.IsNotExist(err) {
		t.Error("file still exists after delete")
	}
	if got, _ := env.recordings.GetByID(context.Background(), stored.ID); got != nil {
		t.Error("metadata row still exists after delete")
	}

	entries, _ := env.audit.List(context.Background(), database.AuditListFilter{
		RecordingID: stored.ID, Action: models.AuditDeleted,
	})
	if len(entries) != 1 {
		t.Fatalf("delete audit entries = %d, want 1", len(entries))
	}
}

func TestDeleteRecordingUnderHoldConflicts(t *testing.T) {
	env := newTestEnv(t)
	stored := env.storeRecording(t, "call-held", []byte("bytes"), true)

	rec := env.do(t, http.MethodDelete, "/api/v1/recordings/"+stored.ID, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(env.baseDir, stored.FilePath)); err != nil {
		t.Error("held recording's file must survive the delete attempt")
	}
}

func TestSetHoldAuditsOnlyChanges(t *testing.T) {
	env := newTestEnv(t)
	stored := env.storeRecording(t, "call-hold", []byte("bytes"), false)
	path := "/api/v1/recordings/" + stored.ID + "/hold"

	// Set, repeat set, release.
	for _, body := range []string{`{"hold":true}`, `{"hold":true}`, `{"hold":false}`} {
		rec := env.do(t, http.MethodPut, path, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	setEntries, _ := env.audit.List(context.Background(), database.AuditListFilter{
		RecordingID: stored.ID, Action: models.AuditHoldSet,
	})
	if len(setEntries) != 1 {
		t.Errorf("hold_set entries = %d, want 1 (repeat set must not audit)", len(setEntries))
	}
	releaseEntries, _ := env.audit.List(context.Background(), database.AuditListFilter{
		RecordingID: stored.ID, Action: models.AuditHoldReleased,
	})
	if len(releaseEntries) != 1 {
		t.Errorf("hold_released entries = %d, want 1", len(releaseEntries))
	}
	if !strings.Contains(setEntries[0].Metadata, `"old":false`) {
		t.Errorf("hold_set metadata = %q", setEntries[0].Metadata)
	}
}

func TestSetHoldValidation(t *testing.T) {
	env := newTestEnv(t)
	stored := env.storeRecording(t, "call-v", []byte("bytes"), false)
	path := "/api/v1/recordings/" + stored.ID + "/hold"

	if rec := env.do(t, http.MethodPut, path, `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing hold: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/v1/recordings/missing/hold", `{"hold":true}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown recording: expected 404, got %d", rec.Code)
	}
}

func TestPolicyCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/retention-policies",
		`{"name":"campaign 7","retention_days":365,"scope":"campaign","campaign_id":7}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created policyResponse
	decodeData(t, rec, &created)
	if created.ID == 0 || created.RetentionDays != 365 {
		t.Fatalf("created = %+v", created)
	}

	idPath := "/api/v1/retention-policies/" + itoa(created.ID)
	rec = env.do(t, http.MethodGet, idPath, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, idPath,
		`{"name":"campaign 7","retention_days":180,"scope":"campaign","campaign_id":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated policyResponse
	decodeData(t, rec, &updated)
	if updated.RetentionDays != 180 {
		t.Errorf("updated days = %d, want 180", updated.RetentionDays)
	}

	rec = env.do(t, http.MethodDelete, idPath, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, idPath, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestPolicyValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"retention_days":30,"scope":"all"}`},
		{"zero days", `{"name":"x","retention_days":0,"scope":"all"}`},
		{"bad scope", `{"name":"x","retention_days":30,"scope":"team"}`},
		{"campaign without id", `{"name":"x","retention_days":30,"scope":"campaign"}`},
		{"campaign with agent id", `{"name":"x","retention_days":30,"scope":"campaign","campaign_id":1,"agent_id":2}`},
		{"agent without id", `{"name":"x","retention_days":30,"scope":"agent"}`},
		{"all with campaign id", `{"name":"x","retention_days":30,"scope":"all","campaign_id":1}`},
		{"default on scoped policy", `{"name":"x","retention_days":30,"scope":"agent","agent_id":1,"is_default":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/retention-policies", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStorageStats(t *testing.T) {
	env := newTestEnv(t)
	stored := env.storeRecording(t, "call-stats", bytes.Repeat([]byte{1}, 1000), false)

	rec := env.do(t, http.MethodGet, "/api/v1/storage/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var stats storageStatsResponse
	decodeData(t, rec, &stats)
	if stats.FileCount != 1 || stats.UsedBytes != stored.FileSizeBytes {
		t.Errorf("stats = %+v, want 1 file of %d bytes", stats, stored.FileSizeBytes)
	}
	if stats.QuotaBytes != 1<<30 {
		t.Errorf("quota = %d", stats.QuotaBytes)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/storage/stats?days=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("days=0: expected 400, got %d", rec.Code)
	}
}

func TestListAuditFilters(t *testing.T) {
	env := newTestEnv(t)
	stored := env.storeRecording(t, "call-audit", []byte("bytes"), false)

	// Midnight before the entries exist, so a clock rolling over mid-test
	// cannot push them out of the window.
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Generate a download and a hold toggle.
	env.do(t, http.MethodGet, "/api/v1/recordings/"+stored.ID+"/audio", "")
	env.do(t, http.MethodPut, "/api/v1/recordings/"+stored.ID+"/hold", `{"hold":true}`)

	rec := env.do(t, http.MethodGet, "/api/v1/audit?recording_id="+stored.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []auditResponse
	decodeData(t, rec, &items)
	if len(items) != 2 {
		t.Fatalf("entries = %d, want 2", len(items))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/audit?action=downloaded", "")
	decodeData(t, rec, &items)
	if len(items) != 1 || items[0].Action != models.AuditDownloaded {
		t.Fatalf("filtered entries = %+v", items)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/audit?action=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bogus action: expected 400, got %d", rec.Code)
	}

	// Same-day time window: entries written moments ago must match a from
	// filter at today's midnight.
	rec = env.do(t, http.MethodGet, "/api/v1/audit?from="+midnight.Format(time.RFC3339), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("from filter: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeData(t, rec, &items)
	if len(items) != 2 {
		t.Errorf("from=midnight entries = %d, want 2", len(items))
	}

	future := time.Now().UTC().Add(time.Hour)
	rec = env.do(t, http.MethodGet, "/api/v1/audit?from="+future.Format(time.RFC3339), "")
	decodeData(t, rec, &items)
	if len(items) != 0 {
		t.Errorf("from=future entries = %d, want 0", len(items))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/audit?to="+midnight.Add(-time.Second).Format(time.RFC3339), "")
	decodeData(t, rec, &items)
	if len(items) != 0 {
		t.Errorf("to=yesterday entries = %d, want 0", len(items))
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/audit?from=not-a-time", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad from: expected 400, got %d", rec.Code)
	}
}

func TestListRecordingsFilters(t *testing.T) {
	env := newTestEnv(t)
	recA := env.storeRecording(t, "call-a", []byte("a"), false)
	recB := env.storeRecording(t, "call-b", []byte("b"), true)

	rec := env.do(t, http.MethodGet, "/api/v1/recordings", "")
	var page struct {
		Items []recordingResponse `json:"items"`
		Total int                 `json:"total"`
	}
	decodeData(t, rec, &page)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("page = %+v", page)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/recordings?hold=true", "")
	decodeData(t, rec, &page)
	if page.Total != 1 || page.Items[0].ID != recB.ID {
		t.Fatalf("hold filter page = %+v", page)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/recordings?hold=false", "")
	decodeData(t, rec, &page)
	if page.Total != 1 || page.Items[0].ID != recA.ID {
		t.Fatalf("no-hold filter page = %+v", page)
	}
}

func TestUploadRecording(t *testing.T) {
	env := newTestEnv(t)
	audio := []byte("RIFF-uploaded-audio-payload")

	rec := env.doUpload(t, "call.wav", audio, map[string]string{
		"call_id":          "call-up",
		"campaign_id":      "12",
		"duration_seconds": "4.5",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created recordingResponse
	decodeData(t, rec, &created)
	if created.ID == "" || created.CallID != "call-up" || created.Format != "wav" {
		t.Fatalf("created = %+v", created)
	}
	if created.CampaignID == nil || *created.CampaignID != 12 {
		t.Errorf("campaign = %v, want 12", created.CampaignID)
	}
	if created.DurationSeconds != 4.5 {
		t.Errorf("duration = %v, want 4.5", created.DurationSeconds)
	}
	if created.RetentionUntil == "" {
		t.Error("retention_until not set")
	}

	// The stored copy must round-trip through download.
	dl := env.do(t, http.MethodGet, "/api/v1/recordings/"+created.ID+"/audio", "")
	if dl.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", dl.Code)
	}
	if !bytes.Equal(dl.Body.Bytes(), audio) {
		t.Error("downloaded audio does not match the uploaded bytes")
	}

	entries, err := env.audit.List(context.Background(), database.AuditListFilter{
		RecordingID: created.ID, Action: models.AuditUploaded,
	})
	if err != nil || len(entries) != 1 {
		t.Fatalf("upload audit entries = (%v, %v), want 1", entries, err)
	}
	if entries[0].UserID == nil || *entries[0].UserID != 7 {
		t.Errorf("audit user = %v, want 7", entries[0].UserID)
	}
	if !strings.Contains(entries[0].Metadata, `"source":"upload"`) {
		t.Errorf("audit metadata = %q", entries[0].Metadata)
	}
}

func TestUploadRecordingValidation(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.doUpload(t, "", nil, map[string]string{"call_id": "c1"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: expected 400, got %d", rec.Code)
	}
	if rec := env.doUpload(t, "a.wav", []byte("x"), nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing call_id: expected 400, got %d", rec.Code)
	}
	if rec := env.doUpload(t, "a.wav", nil, map[string]string{"call_id": "c1"}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty file: expected 400, got %d", rec.Code)
	}
	if rec := env.doUpload(t, "a.wav", []byte("x"), map[string]string{
		"call_id": "c1", "campaign_id": "abc",
	}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad campaign_id: expected 400, got %d", rec.Code)
	}
	if rec := env.doUpload(t, "a.wav", []byte("x"), map[string]string{
		"call_id": "c1", "duration_seconds": "-1",
	}); rec.Code != http.StatusBadRequest {
		t.Errorf("negative duration: expected 400, got %d", rec.Code)
	}

	env.storeRecording(t, "call-dup", []byte("bytes"), false)
	if rec := env.doUpload(t, "a.wav", []byte("x"), map[string]string{"call_id": "call-dup"}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate call: expected 409, got %d", rec.Code)
	}
}

func TestUploadRecordingQuotaExceeded(t *testing.T) {
	env := newTestEnvQuota(t, 64)

	rec := env.doUpload(t, "big.wav", bytes.Repeat([]byte{7}, 1000), map[string]string{
		"call_id": "call-big",
	})
	if rec.Code != http.StatusInsufficientStorage {
		t.Fatalf("expected 507, got %d: %s", rec.Code, rec.Body.String())
	}

	// Rejected upload writes nothing.
	files, used := env.tracker.Usage()
	if files != 0 || used != 0 {
		t.Errorf("usage after rejection = %d files / %d bytes, want 0 / 0", files, used)
	}
	if got, _ := env.recordings.GetByCallID(context.Background(), "call-big"); got != nil {
		t.Error("metadata row exists after rejected upload")
	}
}

func TestDownloadRecordingRange(t *testing.T) {
	env := newTestEnv(t)
	audio := bytes.Repeat([]byte("0123456789"), 100) // 1000 bytes
	stored := env.storeRecording(t, "call-range", audio, false)
	path := "/api/v1/recordings/" + stored.ID + "/audio"

	doRange := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+env.token)
		req.Header.Set("Range", header)
		req.RemoteAddr = "203.0.113.9:4444"
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		return rec
	}

	rec := doRange("bytes=0-99")
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(rec.Body.Bytes(), audio[:100]) {
		t.Error("range body does not match the first 100 bytes")
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes 0-99/1000" {
		t.Errorf("Content-Range = %q", cr)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = doRange("bytes=-100")
	if rec.Code != http.StatusPartialContent || !bytes.Equal(rec.Body.Bytes(), audio[900:]) {
		t.Errorf("suffix range: code %d, body %d bytes", rec.Code, rec.Body.Len())
	}

	rec = doRange("bytes=2000-3000")
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("out-of-bounds range: expected 416, got %d", rec.Code)
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes */1000" {
		t.Errorf("416 Content-Range = %q", cr)
	}

	// An unparseable Range header falls back to the full file.
	rec = doRange("pages=1-2")
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), audio) {
		t.Errorf("invalid range header: code %d, body %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestParseRangeHeader(t *testing.T) {
	const size = 10000
	cases := []struct {
		header     string
		start, end int64
		ok         bool
	}{
		{"bytes=0-999", 0, 999, true},
		{"bytes=500-", 500, 9999, true},
		{"bytes=-500", 9500, 9999, true},
		{"bytes=-1", 9999, 9999, true},
		{"bytes=-20000", 0, 9999, true}, // suffix longer than the file clamps
		{"bytes=", 0, 0, false},
		{"bytes=abc-def", 0, 0, false},
		{"bytes=1-2-3", 0, 0, false},
		{"items=0-10", 0, 0, false},
	}
	for _, tc := range cases {
		start, end, ok := parseRangeHeader(tc.header, size)
		if ok != tc.ok || (ok && (start != tc.start || end != tc.end)) {
			t.Errorf("%q: got (%d, %d, %t), want (%d, %d, %t)",
				tc.header, start, end, ok, tc.start, tc.end, tc.ok)
		}
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
