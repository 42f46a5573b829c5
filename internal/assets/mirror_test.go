package assets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"notion_sync/internal/domain"
	"notion_sync/internal/testutil"
)

type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]domain.Asset
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[string]domain.Asset{}}
}

func (s *memoryStore) ListByArticle(_ context.Context, articleID int64) ([]domain.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Asset
	for _, a := range s.rows {
		if a.ArticleID != nil && *a.ArticleID == articleID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) Save(_ context.Context, asset *domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.rows[asset.BlockID]; ok {
		asset.ID = prev.ID
	} else {
		s.nextID++
		asset.ID = s.nextID
	}
	s.rows[asset.BlockID] = *asset
	return nil
}

func (s *memoryStore) Touch(_ context.Context, id int64, remoteURL string, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.rows {
		if a.ID == id {
			a.RemoteURL = remoteURL
			a.LastSyncedAt = syncedAt
			s.rows[k] = a
			return nil
		}
	}
	return errors.New("not found")
}

func (s *memoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.rows {
		if a.ID == id {
			delete(s.rows, k)
		}
	}
	return nil
}

func (s *memoryStore) DeleteByArticle(ctx context.Context, articleID int64) ([]domain.Asset, error) {
	rows, _ := s.ListByArticle(ctx, articleID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range rows {
		delete(s.rows, a.BlockID)
	}
	return rows, nil
}

type memoryStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	puts    int
	deletes []string
	failDel bool
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: map[string][]byte{}}
}

func (s *memoryStorage) Put(_ context.Context, name, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.files[name] = data
	return nil
}

func (s *memoryStorage) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, name)
	if s.failDel {
		return errors.New("permission denied")
	}
	delete(s.files, name)
	return nil
}

func (s *memoryStorage) PublicPath(name string) string {
	return "/uploads/notion/" + name
}

type stubFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.fail[url] {
		return nil, errors.New("unexpected status: 500")
	}
	return &Download{Data: []byte("img:" + url), MimeType: "image/png"}, nil
}

func imageBlock(id, kind, url string) domain.Block {
	return domain.Block{
		ID:      id,
		Type:    domain.BlockTypeImage,
		Content: &domain.ImageContent{Kind: kind, URL: url},
	}
}

type MirrorTestSuite struct {
	suite.Suite

	store   *memoryStore
	storage *memoryStorage
	fetcher *stubFetcher
	clock   *testutil.StubClock
	mirror  *Mirror
}

func (s *MirrorTestSuite) SetupTest() {
	s.store = newMemoryStore()
	s.storage = newMemoryStorage()
	s.fetcher = &stubFetcher{fail: map[string]bool{}}
	s.clock = testutil.FixedClock()
	s.mirror = NewMirror(s.store, s.storage, s.fetcher, s.clock, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMirrorTestSuite(t *testing.T) {
	suite.Run(t, new(MirrorTestSuite))
}

func (s *MirrorTestSuite) TestSync_MirrorsHostedAndKeepsExternal() {
	ctx := context.Background()
	blocks := []domain.Block{
		imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png"),
		imageBlock("b2", domain.ImageKindExternal, "https://cdn.example.com/2.png"),
		{
			ID: "t", Type: "toggle", HasChildren: true,
			Content:  &domain.TextContent{},
			Children: []domain.Block{imageBlock("b3", domain.ImageKindFile, "https://s3.amazonaws.com/3.png")},
		},
	}

	mapping, err := s.mirror.Sync(ctx, 7, blocks)

	s.Require().NoError(err)
	s.Equal(map[string]string{
		"b1": "/uploads/notion/" + FileName("b1", "image/png"),
		"b2": "https://cdn.example.com/2.png",
		"b3": "/uploads/notion/" + FileName("b3", "image/png"),
	}, mapping)

	rows, _ := s.store.ListByArticle(ctx, 7)
	s.Require().Len(rows, 2)
	s.Equal("b1", rows[0].BlockID)
	s.Equal("https://s3.amazonaws.com/1.png", rows[0].RemoteURL)
	s.Equal(FileName("b1", "image/png"), rows[0].FileName)
	s.Equal("image/png", rows[0].MimeType)
	s.Equal(int64(len("img:https://s3.amazonaws.com/1.png")), rows[0].Size)
	s.Equal(s.clock.Now(), rows[0].LastSyncedAt)

	s.Len(s.storage.files, 2)
	s.Equal([]string{"https://s3.amazonaws.com/1.png", "https://s3.amazonaws.com/3.png"}, s.fetcher.calls)
}

func (s *MirrorTestSuite) TestSync_ResyncReusesRowsAndRefreshesURL() {
	ctx := context.Background()
	_, err := s.mirror.Sync(ctx, 7, []domain.Block{imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png?sig=a")})
	s.Require().NoError(err)
	before, _ := s.store.ListByArticle(ctx, 7)

	s.clock.Advance(time.Hour)
	mapping, err := s.mirror.Sync(ctx, 7, []domain.Block{imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png?sig=b")})

	s.Require().NoError(err)
	after, _ := s.store.ListByArticle(ctx, 7)
	s.Require().Len(after, 1)
	s.Equal(before[0].ID, after[0].ID)
	s.Equal(before[0].LocalPath, after[0].LocalPath)
	s.Equal(before[0].LocalPath, mapping["b1"])
	s.Equal("https://s3.amazonaws.com/1.png?sig=b", after[0].RemoteURL)
	s.Equal(s.clock.Now(), after[0].LastSyncedAt)
	s.Equal(1, s.storage.puts, "existing asset must not be downloaded again")
	s.Len(s.fetcher.calls, 1)
}

func (s *MirrorTestSuite) TestSync_RemovedBlockIsCollected() {
	ctx := context.Background()
	_, err := s.mirror.Sync(ctx, 7, []domain.Block{
		imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png"),
		imageBlock("b2", domain.ImageKindFile, "https://s3.amazonaws.com/2.png"),
	})
	s.Require().NoError(err)

	_, err = s.mirror.Sync(ctx, 7, []domain.Block{
		imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png"),
	})

	s.Require().NoError(err)
	rows, _ := s.store.ListByArticle(ctx, 7)
	s.Require().Len(rows, 1)
	s.Equal("b1", rows[0].BlockID)
	s.Equal([]string{FileName("b2", "image/png")}, s.storage.deletes)
	s.Contains(s.storage.files, FileName("b1", "image/png"))
}

func (s *MirrorTestSuite) TestSync_BlockTurnedExternalIsCollected() {
	ctx := context.Background()
	_, err := s.mirror.Sync(ctx, 7, []domain.Block{imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png")})
	s.Require().NoError(err)

	mapping, err := s.mirror.Sync(ctx, 7, []domain.Block{imageBlock("b1", domain.ImageKindExternal, "https://cdn.example.com/1.png")})

	s.Require().NoError(err)
	s.Equal("https://cdn.example.com/1.png", mapping["b1"])
	rows, _ := s.store.ListByArticle(ctx, 7)
	s.Empty(rows)
}

func (s *MirrorTestSuite) TestSync_FileRemovalFailureDoesNotAbort() {
	ctx := context.Background()
	_, err := s.mirror.Sync(ctx, 7, []domain.Block{imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png")})
	s.Require().NoError(err)
	s.storage.failDel = true

	_, err = s.mirror.Sync(ctx, 7, nil)

	s.Require().NoError(err)
	rows, _ := s.store.ListByArticle(ctx, 7)
	s.Empty(rows)
}

func (s *MirrorTestSuite) TestSync_DownloadFailureKeepsRemoteURL() {
	ctx := context.Background()
	s.fetcher.fail["https://s3.amazonaws.com/bad.png"] = true

	mapping, err := s.mirror.Sync(ctx, 7, []domain.Block{
		imageBlock("bad", domain.ImageKindFile, "https://s3.amazonaws.com/bad.png"),
		imageBlock("good", domain.ImageKindFile, "https://s3.amazonaws.com/good.png"),
	})

	s.Require().NoError(err)
	s.Equal("https://s3.amazonaws.com/bad.png", mapping["bad"])
	s.Equal("/uploads/notion/"+FileName("good", "image/png"), mapping["good"])
	rows, _ := s.store.ListByArticle(ctx, 7)
	s.Require().Len(rows, 1)
	s.Equal("good", rows[0].BlockID)
}

func (s *MirrorTestSuite) TestSync_DelayHonoursCancellation() {
	s.mirror = NewMirror(s.store, s.storage, s.fetcher, s.clock, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.mirror.Sync(ctx, 7, []domain.Block{imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png")})

	s.ErrorIs(err, context.Canceled)
}

func (s *MirrorTestSuite) TestMirrorCover() {
	path, err := s.mirror.MirrorCover(context.Background(), "page-1", "https://s3.amazonaws.com/cover.png")

	s.Require().NoError(err)
	s.Equal("/uploads/notion/"+FileName("cover-page-1", "image/png"), path)
	s.Contains(s.storage.files, FileName("cover-page-1", "image/png"))
	rows, _ := s.store.ListByArticle(context.Background(), 0)
	s.Empty(rows)
}

func (s *MirrorTestSuite) TestReleaseAndDiscard() {
	ctx := context.Background()
	_, err := s.mirror.Sync(ctx, 7, []domain.Block{imageBlock("b1", domain.ImageKindFile, "https://s3.amazonaws.com/1.png")})
	s.Require().NoError(err)
	cover, err := s.mirror.MirrorCover(ctx, "page-1", "https://s3.amazonaws.com/cover.png")
	s.Require().NoError(err)

	released, err := s.mirror.Release(ctx, 7)
	s.Require().NoError(err)
	s.Len(released, 1)
	s.Len(s.storage.files, 2, "files stay until discarded")

	s.mirror.Discard(ctx, released, cover)
	s.Empty(s.storage.files)

	s.mirror.Discard(ctx, nil, "https://picsum.photos/500/400?random=page-1")
	s.Len(s.storage.deletes, 2)
}
