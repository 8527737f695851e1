package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"text-to-voice/internal/blobstore"
	"text-to-voice/internal/store"
	"text-to-voice/internal/tts"
	"text-to-voice/pkg/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	errMockStore  = errors.New("mock store error")
	errMockUpload = errors.New("mock upload error")
)

// fakeRecords хранит записи в памяти
type fakeRecords struct {
	mu        sync.Mutex
	records   map[string]*models.ProcessRecord
	getErr    error
	updateErr error
	getCalls  int
	updates   []string
}

func newFakeRecords(records ...*models.ProcessRecord) *fakeRecords {
	f := &fakeRecords{records: make(map[string]*models.ProcessRecord)}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return f
}

func (f *fakeRecords) GetByID(_ context.Context, id string) (*models.ProcessRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.records[id]
	if !ok {
		return nil, store.ErrProcessNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRecords) UpdateVoiceKey(_ context.Context, id, voiceURL string) (*models.ProcessRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return nil, f.updateErr
	}
	r, ok := f.records[id]
	if !ok {
		return nil, store.ErrProcessNotFound
	}
	r.BucketKeyVoice = &voiceURL
	f.updates = append(f.updates, voiceURL)
	copied := *r
	return &copied, nil
}

func (f *fakeRecords) voiceKey(id string) *string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id].BucketKeyVoice
}

// fakeBlobs хранилище в памяти
type fakeBlobs struct {
	mu            sync.Mutex
	objects       map[string][]byte
	contentTypes  map[string]string
	downloadErr   error
	uploadErr     error
	noPublicURL   bool
	downloadCalls int
	uploadCalls   int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (f *fakeBlobs) Download(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.downloadCalls++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, blobstore.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeBlobs) Upload(_ context.Context, name string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploadCalls++
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if _, ok := f.objects[name]; ok {
		return blobstore.ErrObjectExists
	}
	f.objects[name] = data
	f.contentTypes[name] = contentType
	return nil
}

func (f *fakeBlobs) PublicURL(name string) (string, error) {
	if f.noPublicURL {
		return "", blobstore.ErrPublicURLUnavailable
	}
	return "http://localhost:8080/storage/v1/object/public/textvoi/" + name, nil
}

func (f *fakeBlobs) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadCalls, f.uploadCalls
}

// fakeSynthesizer запоминает запросы
type fakeSynthesizer struct {
	mu       sync.Mutex
	err      error
	requests []models.SynthesisRequest
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req models.SynthesisRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("audio:" + req.Text), nil
}

func (f *fakeSynthesizer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeRecorder собирает метрики
type fakeRecorder struct {
	mu     sync.Mutex
	stages []string
	runs   []string
}

func (f *fakeRecorder) ObserveStage(stage string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
}

func (f *fakeRecorder) RecordRun(kind string, success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, fmt.Sprintf("%s:%t", kind, success))
}

func (f *fakeRecorder) RecordAudio(int) {}

func strPtr(s string) *string { return &s }

var testConfig = Config{
	VoiceID: "x5IDPSl4ZUbhosMmVFTk",
	ModelID: "eleven_monolingual_v1",
	VoiceSettings: models.VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.5,
	},
}

func newTestService(records *fakeRecords, blobs *fakeBlobs, synth *fakeSynthesizer, opts ...Option) *Service {
	return NewService(records, blobs, synth, testConfig, zap.NewNop(), opts...)
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()

	var pipelineErr *Error
	require.True(t, errors.As(err, &pipelineErr), "ожидалась ошибка конвейера, получена %v", err)
	assert.Equal(t, kind, pipelineErr.Kind)
	return pipelineErr
}

func TestRun_InlineText(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	blobs := newFakeBlobs()
	synth := &fakeSynthesizer{}

	artifact, err := newTestService(records, blobs, synth).Run(context.Background(), "42")
	require.NoError(t, err)

	require.Len(t, synth.requests, 1)
	assert.Equal(t, "Hello world", synth.requests[0].Text)
	assert.Equal(t, testConfig.VoiceID, synth.requests[0].VoiceID)
	assert.Equal(t, testConfig.ModelID, synth.requests[0].ModelID)
	assert.Equal(t, testConfig.VoiceSettings, synth.requests[0].VoiceSettings)

	assert.True(t, strings.HasPrefix(artifact.Name, "tts-"))
	assert.True(t, strings.HasSuffix(artifact.Name, ".mp3"))
	assert.True(t, strings.HasSuffix(artifact.URL, ".mp3"))
	assert.Contains(t, artifact.URL, artifact.Name)

	voice := records.voiceKey("42")
	require.NotNil(t, voice)
	assert.Equal(t, artifact.URL, *voice)

	assert.Equal(t, []byte("audio:Hello world"), blobs.objects[artifact.Name])
	assert.Equal(t, ContentTypeMPEG, blobs.contentTypes[artifact.Name])
	downloads, _ := blobs.calls()
	assert.Equal(t, 0, downloads, "текст из записи не требует скачивания")
}

func TestRun_InlineTextIsVerbatim(t *testing.T) {
	contents := []string{"  leading and trailing  ", "\tline1\nline2\n", "", "   ", "Привет, мир"}

	for i, content := range contents {
		id := fmt.Sprintf("%d", i+1)
		records := newFakeRecords(&models.ProcessRecord{ID: id, Content: strPtr(content)})
		synth := &fakeSynthesizer{}

		_, err := newTestService(records, newFakeBlobs(), synth).Run(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, synth.requests, 1)
		assert.Equal(t, content, synth.requests[0].Text)
	}
}

func TestRun_FileBackedText(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{
		ID:            "7",
		IsFile:        true,
		Content:       strPtr("must be ignored"),
		BucketKeyText: strPtr("t7.txt"),
	})
	blobs := newFakeBlobs()
	blobs.objects["t7.txt"] = []byte("Good morning")
	synth := &fakeSynthesizer{}

	artifact, err := newTestService(records, blobs, synth).Run(context.Background(), "7")
	require.NoError(t, err)

	require.Len(t, synth.requests, 1)
	assert.Equal(t, "Good morning", synth.requests[0].Text)
	assert.NotEmpty(t, artifact.URL)
}

func TestRun_MissingID(t *testing.T) {
	records := newFakeRecords()
	blobs := newFakeBlobs()
	synth := &fakeSynthesizer{}

	_, err := newTestService(records, blobs, synth).Run(context.Background(), "")

	pipelineErr := requireKind(t, err, KindInvalidRequest)
	assert.Equal(t, http.StatusBadRequest, pipelineErr.Status)
	assert.Equal(t, MsgIDRequired, pipelineErr.Message)
	assert.Equal(t, 0, records.getCalls)
	assert.Equal(t, 0, synth.calls())
}

func TestRun_RecordNotFound(t *testing.T) {
	records := newFakeRecords()
	blobs := newFakeBlobs()
	synth := &fakeSynthesizer{}

	_, err := newTestService(records, blobs, synth).Run(context.Background(), "99")

	pipelineErr := requireKind(t, err, KindRecordNotFound)
	assert.Equal(t, http.StatusBadRequest, pipelineErr.Status)
	assert.Equal(t, MsgRowNotFound, pipelineErr.Message)
	assert.Equal(t, StageLoadRecord, pipelineErr.Stage)

	downloads, uploads := blobs.calls()
	assert.Equal(t, 0, downloads)
	assert.Equal(t, 0, uploads)
	assert.Equal(t, 0, synth.calls())
}

func TestRun_RecordLookupErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		message string
	}{
		{
			name:    "база недоступна",
			err:     fmt.Errorf("ошибка получения записи process: %w: %w", store.ErrStoreUnavailable, errMockStore),
			kind:    KindStoreUnavailable,
			message: "mock store error",
		},
		{
			name:    "ошибка запроса",
			err:     fmt.Errorf("ошибка получения записи process: %w", errMockStore),
			kind:    KindRecordNotFound,
			message: "mock store error",
		},
		{
			name:    "ошибка PostgreSQL",
			err:     fmt.Errorf("ошибка получения записи process: %w: %w", &pgconn.PgError{Message: "invalid input syntax for type bigint"}, errMockStore),
			kind:    KindRecordNotFound,
			message: "invalid input syntax for type bigint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := newFakeRecords(&models.ProcessRecord{ID: "1", Content: strPtr("x")})
			records.getErr = tt.err
			blobs := newFakeBlobs()
			synth := &fakeSynthesizer{}

			_, err := newTestService(records, blobs, synth).Run(context.Background(), "1")

			pipelineErr := requireKind(t, err, tt.kind)
			assert.Equal(t, http.StatusBadRequest, pipelineErr.Status)
			assert.Equal(t, tt.message, pipelineErr.Message)
			assert.ErrorIs(t, err, errMockStore)

			downloads, uploads := blobs.calls()
			assert.Equal(t, 0, downloads)
			assert.Equal(t, 0, uploads)
			assert.Equal(t, 0, synth.calls())
		})
	}
}

func TestRun_BlobDownloadFailed(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "7", IsFile: true, BucketKeyText: strPtr("missing.txt")})
	blobs := newFakeBlobs()
	synth := &fakeSynthesizer{}

	_, err := newTestService(records, blobs, synth).Run(context.Background(), "7")

	pipelineErr := requireKind(t, err, KindBlobDownloadFailed)
	assert.Equal(t, http.StatusInternalServerError, pipelineErr.Status)
	assert.True(t, strings.HasPrefix(pipelineErr.Message, "Error downloading file: "))
	assert.ErrorIs(t, err, blobstore.ErrObjectNotFound)
	assert.Equal(t, 0, synth.calls())
}

func TestRun_FileFlagWithoutKey(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "8", IsFile: true, Content: strPtr("unused")})
	blobs := newFakeBlobs()
	synth := &fakeSynthesizer{}

	_, err := newTestService(records, blobs, synth).Run(context.Background(), "8")

	requireKind(t, err, KindBlobDownloadFailed)
	assert.ErrorIs(t, err, models.ErrTextKeyMissing)
	downloads, _ := blobs.calls()
	assert.Equal(t, 0, downloads)
	assert.Equal(t, 0, synth.calls())
}

func TestRun_BlobEmpty(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "7", IsFile: true, BucketKeyText: strPtr("empty.txt")})
	blobs := newFakeBlobs()
	blobs.objects["empty.txt"] = []byte{}
	synth := &fakeSynthesizer{}

	_, err := newTestService(records, blobs, synth).Run(context.Background(), "7")

	pipelineErr := requireKind(t, err, KindBlobEmpty)
	assert.Equal(t, http.StatusBadRequest, pipelineErr.Status)
	assert.Equal(t, MsgBlobEmpty, pipelineErr.Message)
	assert.Equal(t, 0, synth.calls())
}

func TestRun_ConfigurationError(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	blobs := newFakeBlobs()
	synth := &fakeSynthesizer{err: tts.ErrAPIKeyNotSet}

	_, err := newTestService(records, blobs, synth).Run(context.Background(), "42")

	pipelineErr := requireKind(t, err, KindConfigurationError)
	assert.Equal(t, http.StatusInternalServerError, pipelineErr.Status)
	assert.Equal(t, "Eleven Labs API Key not set", pipelineErr.Message)
	_, uploads := blobs.calls()
	assert.Equal(t, 0, uploads)
	assert.Nil(t, records.voiceKey("42"))
}

func TestRun_ProviderErrorForwardsStatus(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	blobs := newFakeBlobs()
	synth := &fakeSynthesizer{err: &tts.ProviderError{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}}

	_, err := newTestService(records, blobs, synth).Run(context.Background(), "42")

	pipelineErr := requireKind(t, err, KindSynthesisProviderError)
	assert.Equal(t, http.StatusServiceUnavailable, pipelineErr.Status)
	assert.Contains(t, pipelineErr.Message, "Eleven Labs API Error")

	_, uploads := blobs.calls()
	assert.Equal(t, 0, uploads, "после ошибки синтеза загрузки быть не должно")
	assert.Nil(t, records.voiceKey("42"), "запись не должна меняться")
	assert.Empty(t, records.updates)
}

func TestRun_ProviderTransportError(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	synth := &fakeSynthesizer{err: &tts.ProviderError{Err: errors.New("connection refused")}}

	_, err := newTestService(records, newFakeBlobs(), synth).Run(context.Background(), "42")

	pipelineErr := requireKind(t, err, KindSynthesisProviderError)
	assert.Equal(t, http.StatusBadGateway, pipelineErr.Status)
	assert.Contains(t, pipelineErr.Message, "connection refused")
}

func TestRun_UploadFailureLeavesRecordUntouched(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	blobs := newFakeBlobs()
	blobs.uploadErr = errMockUpload
	synth := &fakeSynthesizer{}

	_, err := newTestService(records, blobs, synth).Run(context.Background(), "42")

	pipelineErr := requireKind(t, err, KindArtifactStoreError)
	assert.Equal(t, http.StatusInternalServerError, pipelineErr.Status)
	assert.Equal(t, "Storage Error: mock upload error", pipelineErr.Message)
	assert.Nil(t, records.voiceKey("42"))
}

func TestRun_NameCollision(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	namer := &Namer{now: func() time.Time { return now }}

	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	blobs := newFakeBlobs()
	blobs.objects["tts-1700000000000.mp3"] = []byte("existing")

	_, err := newTestService(records, blobs, &fakeSynthesizer{}, WithNamer(namer)).Run(context.Background(), "42")

	requireKind(t, err, KindArtifactStoreError)
	assert.ErrorIs(t, err, blobstore.ErrObjectExists)
	assert.Equal(t, []byte("existing"), blobs.objects["tts-1700000000000.mp3"])
	assert.Nil(t, records.voiceKey("42"))
}

func TestRun_PublicURLUnavailable(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	blobs := newFakeBlobs()
	blobs.noPublicURL = true

	_, err := newTestService(records, blobs, &fakeSynthesizer{}).Run(context.Background(), "42")

	pipelineErr := requireKind(t, err, KindArtifactStoreError)
	assert.Equal(t, MsgPublicURLError, pipelineErr.Message)
	assert.Len(t, blobs.objects, 1, "аудио остается в хранилище")
	assert.Nil(t, records.voiceKey("42"))
}

func TestRun_UpdateFailureLeavesOrphan(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	records.updateErr = errMockStore
	blobs := newFakeBlobs()

	_, err := newTestService(records, blobs, &fakeSynthesizer{}).Run(context.Background(), "42")

	pipelineErr := requireKind(t, err, KindArtifactStoreError)
	assert.Equal(t, http.StatusInternalServerError, pipelineErr.Status)
	assert.Equal(t, "mock store error", pipelineErr.Message)
	assert.Len(t, blobs.objects, 1)
}

func TestRun_UpdateRecordGone(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	records.updateErr = store.ErrProcessNotFound

	_, err := newTestService(records, newFakeBlobs(), &fakeSynthesizer{}).Run(context.Background(), "42")

	pipelineErr := requireKind(t, err, KindArtifactStoreError)
	assert.Equal(t, MsgRowNotFound, pipelineErr.Message)
	assert.ErrorIs(t, err, store.ErrProcessNotFound)
}

func TestRun_NotIdempotent(t *testing.T) {
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	blobs := newFakeBlobs()
	service := newTestService(records, blobs, &fakeSynthesizer{})

	first, err := service.Run(context.Background(), "42")
	require.NoError(t, err)
	second, err := service.Run(context.Background(), "42")
	require.NoError(t, err)

	assert.NotEqual(t, first.Name, second.Name)
	assert.Len(t, blobs.objects, 2)

	voice := records.voiceKey("42")
	require.NotNil(t, voice)
	assert.Equal(t, second.URL, *voice)
	assert.Equal(t, []string{first.URL, second.URL}, records.updates)
}

func TestRun_RecordsMetrics(t *testing.T) {
	recorder := &fakeRecorder{}
	records := newFakeRecords(&models.ProcessRecord{ID: "42", Content: strPtr("Hello world")})
	service := newTestService(records, newFakeBlobs(), &fakeSynthesizer{}, WithRecorder(recorder))

	_, err := service.Run(context.Background(), "42")
	require.NoError(t, err)
	_, err = service.Run(context.Background(), "missing")
	require.Error(t, err)

	assert.Equal(t, []string{
		string(StageLoadRecord), string(StageResolveText), string(StageSynthesize), string(StagePublish),
		string(StageLoadRecord),
	}, recorder.stages)
	assert.Equal(t, []string{":true", "RecordNotFound:false"}, recorder.runs)
}

func TestKindAndStatusOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindBlobEmpty, StageResolveText, "1", http.StatusBadRequest, MsgBlobEmpty, nil))

	assert.Equal(t, KindBlobEmpty, KindOf(err))
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("other")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("other")))
}
