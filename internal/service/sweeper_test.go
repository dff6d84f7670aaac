package service

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupSweeperEnv создаёт две области хранения в памяти.
func setupSweeperEnv(t *testing.T) (afero.Fs, *filestore.FileStore, *filestore.FileStore) {
	t.Helper()

	fs := afero.NewMemMapFs()
	incoming, err := filestore.New(fs, "/data/uploads")
	require.NoError(t, err, "ошибка создания области incoming")
	converted, err := filestore.New(fs, "/data/converted")
	require.NoError(t, err, "ошибка создания области converted")

	return fs, incoming, converted
}

// putFile сохраняет файл и выставляет ему mtime = now − age.
func putFile(t *testing.T, store *filestore.FileStore, name string, age time.Duration) string {
	t.Helper()

	res, err := store.Save(strings.NewReader("test data"), name)
	require.NoError(t, err)

	mtime := time.Now().Add(-age)
	require.NoError(t, store.Fs().Chtimes(res.Path, mtime, mtime))
	return res.Name
}

func newTestSweeper(incoming, converted *filestore.FileStore, retention time.Duration) *Sweeper {
	return NewSweeper([]Area{
		{Name: "incoming", Store: incoming},
		{Name: "converted", Store: converted},
	}, time.Hour, retention, testLogger())
}

func TestSweeperRunOnce_Empty(t *testing.T) {
	_, incoming, converted := setupSweeperEnv(t)

	result := newTestSweeper(incoming, converted, 24*time.Hour).RunOnce(context.Background())

	assert.Zero(t, result.Scanned)
	assert.Zero(t, result.Deleted)
	assert.Zero(t, result.Errors)
}

func TestSweeperRunOnce_DeletesOnlyExpired(t *testing.T) {
	_, incoming, converted := setupSweeperEnv(t)

	oldIn := putFile(t, incoming, "old.pdf", 48*time.Hour)
	freshIn := putFile(t, incoming, "fresh.pdf", time.Minute)
	oldOut := putFile(t, converted, "old.docx", 25*time.Hour)
	freshOut := putFile(t, converted, "fresh.docx", 23*time.Hour)

	sw := newTestSweeper(incoming, converted, 24*time.Hour)
	result := sw.RunOnce(context.Background())

	assert.Equal(t, 4, result.Scanned)
	assert.Equal(t, 2, result.Deleted)
	assert.Zero(t, result.Errors)
	assert.Equal(t, int64(2*len("test data")), result.FreedBytes)

	assert.False(t, incoming.Exists(oldIn), "старый входной файл должен быть удалён")
	assert.True(t, incoming.Exists(freshIn), "свежий входной файл должен остаться")
	assert.False(t, converted.Exists(oldOut), "старый результат должен быть удалён")
	assert.True(t, converted.Exists(freshOut), "свежий результат должен остаться")

	// Повторный запуск без новых файлов ничего не удаляет
	again := sw.RunOnce(context.Background())
	assert.Zero(t, again.Deleted)
	assert.Equal(t, 2, again.Scanned)
}

// TestSweeperRunOnce_StaleTmp проверяет удаление брошенных временных файлов.
func TestSweeperRunOnce_StaleTmp(t *testing.T) {
	fs, incoming, converted := setupSweeperEnv(t)

	tmp := "/data/converted/abandoned.pdf" + filestore.TmpSuffix
	require.NoError(t, afero.WriteFile(fs, tmp, []byte("partial"), 0o640))
	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, fs.Chtimes(tmp, old, old))

	result := newTestSweeper(incoming, converted, 24*time.Hour).RunOnce(context.Background())

	assert.Equal(t, 1, result.Deleted)
	exists, err := afero.Exists(fs, tmp)
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestSweeperRunOnce_ConcurrentDelete проверяет, что файл, удалённый
// параллельно обработчиком запроса, не считается ошибкой.
func TestSweeperRunOnce_ConcurrentDelete(t *testing.T) {
	_, incoming, converted := setupSweeperEnv(t)
	name := putFile(t, converted, "gone.txt", 48*time.Hour)

	sw := newTestSweeper(incoming, converted, 24*time.Hour)
	_, err := converted.Delete(name)
	require.NoError(t, err)

	result := sw.RunOnce(context.Background())
	assert.Zero(t, result.Errors)
	assert.Zero(t, result.Deleted)
}

// TestSweeperRunOnce_Parallel проверяет безопасность параллельных вызовов.
func TestSweeperRunOnce_Parallel(t *testing.T) {
	_, incoming, converted := setupSweeperEnv(t)
	for i := 0; i < 10; i++ {
		putFile(t, converted, "f.txt", 48*time.Hour)
	}

	sw := newTestSweeper(incoming, converted, 24*time.Hour)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := sw.RunOnce(context.Background())
			mu.Lock()
			total += r.Deleted
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, total, "каждый файл должен быть удалён ровно один раз")
}

func TestSweeperRunOnce_CancelledContext(t *testing.T) {
	_, incoming, converted := setupSweeperEnv(t)
	name := putFile(t, incoming, "old.txt", 48*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestSweeper(incoming, converted, 24*time.Hour).RunOnce(ctx)
	assert.Zero(t, result.Deleted)
	assert.True(t, incoming.Exists(name))
}

func TestSweeperStartStop(t *testing.T) {
	_, incoming, converted := setupSweeperEnv(t)
	name := putFile(t, incoming, "old.txt", 48*time.Hour)

	sw := newTestSweeper(incoming, converted, 24*time.Hour)
	sw.Start(context.Background())

	// Первый цикл выполняется сразу после старта
	assert.Eventually(t, func() bool {
		return !incoming.Exists(name)
	}, 2*time.Second, 10*time.Millisecond)

	sw.Stop()
	// Повторный Stop безопасен
	sw.Stop()
}
