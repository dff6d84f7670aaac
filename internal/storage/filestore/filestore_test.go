package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := New(afero.NewMemMapFs(), "/data/incoming")
	require.NoError(t, err, "ошибка создания FileStore")
	return s
}

// TestNew_CreatesDirectory проверяет создание директории области.
func TestNew_CreatesDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()

	s, err := New(fs, "/data/converted")
	require.NoError(t, err)
	assert.Equal(t, "/data/converted", s.Dir())

	ok, err := afero.DirExists(fs, "/data/converted")
	require.NoError(t, err)
	assert.True(t, ok, "директория не создана")
}

// TestNew_RealFS проверяет работу поверх ОС.
func TestNew_RealFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "incoming")

	s, err := New(afero.NewOsFs(), dir)
	require.NoError(t, err)

	res, err := s.Save(strings.NewReader("data"), "a.txt")
	require.NoError(t, err)
	assert.True(t, s.Exists(res.Name))
}

// TestSave проверяет сохранение файла с подсчётом SHA-256 и uuid-префиксом.
func TestSave(t *testing.T) {
	s := newStore(t)
	content := []byte("Hello, World! Тестовые данные для проверки.")

	res, err := s.Save(bytes.NewReader(content), "My Report.pdf")
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), res.Size)
	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Checksum)

	assert.Equal(t, res.ID+"_My_Report.pdf", res.Name)
	assert.Equal(t, filepath.Join("/data/incoming", res.Name), res.Path)

	data, err := afero.ReadFile(s.Fs(), res.Path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

// TestSave_UniqueNames проверяет, что одинаковые имена не конфликтуют.
func TestSave_UniqueNames(t *testing.T) {
	s := newStore(t)

	a, err := s.Save(strings.NewReader("a"), "same.txt")
	require.NoError(t, err)
	b, err := s.Save(strings.NewReader("b"), "same.txt")
	require.NoError(t, err)

	assert.NotEqual(t, a.Name, b.Name)
}

// TestSave_NoTmpFile проверяет отсутствие временного файла после записи.
func TestSave_NoTmpFile(t *testing.T) {
	s := newStore(t)

	res, err := s.Save(strings.NewReader("content"), "a.txt")
	require.NoError(t, err)

	_, err = s.Fs().Stat(res.Path + TmpSuffix)
	assert.Error(t, err, "временный файл не должен остаться")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("обрыв соединения") }

// TestSave_ReaderError проверяет удаление temp файла при ошибке чтения.
func TestSave_ReaderError(t *testing.T) {
	s := newStore(t)

	_, err := s.Save(io.MultiReader(strings.NewReader("part"), failingReader{}), "a.txt")
	require.Error(t, err)

	files, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, files, "после ошибки в области не должно остаться файлов")
}

func TestSave_EmptyFile(t *testing.T) {
	s := newStore(t)

	res, err := s.Save(bytes.NewReader(nil), "empty.txt")
	require.NoError(t, err)
	assert.Zero(t, res.Size)

	size, err := s.Size(res.Name)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestOpen(t *testing.T) {
	s := newStore(t)
	res, err := s.Save(strings.NewReader("read me"), "a.txt")
	require.NoError(t, err)

	f, err := s.Open(res.Name)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "read me", string(data))
}

func TestOpen_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.Open("missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	res, err := s.Save(strings.NewReader("x"), "a.txt")
	require.NoError(t, err)

	deleted, err := s.Delete(res.Name)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, s.Exists(res.Name))

	// Повторное удаление — no-op без ошибки
	deleted, err = s.Delete(res.Name)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDelete_DoesNotRemoveDirectory(t *testing.T) {
	s := newStore(t)

	deleted, err := s.Delete("")
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err := afero.DirExists(s.Fs(), s.Dir())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExistsAndSize(t *testing.T) {
	s := newStore(t)
	res, err := s.Save(strings.NewReader("12345"), "a.txt")
	require.NoError(t, err)

	assert.True(t, s.Exists(res.Name))
	assert.False(t, s.Exists("other.txt"))

	size, err := s.Size(res.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = s.Size("other.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestPath_FlatNamespace проверяет, что пути сводятся к базовому имени.
func TestPath_FlatNamespace(t *testing.T) {
	s := newStore(t)

	assert.Equal(t, "/data/incoming/passwd", s.Path("../../etc/passwd"))
	assert.Equal(t, "/data/incoming/a.txt", s.Path("/data/incoming/a.txt"))
	assert.Equal(t, "/data/incoming/a.txt", s.Path("a.txt"))
}

func TestList(t *testing.T) {
	s := newStore(t)
	_, err := s.Save(strings.NewReader("1"), "b.txt")
	require.NoError(t, err)
	_, err = s.Save(strings.NewReader("22"), "a.txt")
	require.NoError(t, err)
	require.NoError(t, s.Fs().MkdirAll(filepath.Join(s.Dir(), "subdir"), 0o750))

	files, err := s.List()
	require.NoError(t, err)
	require.Len(t, files, 2, "директории не должны попадать в список")
	assert.Less(t, files[0].Name, files[1].Name)
	for _, f := range files {
		assert.False(t, f.ModTime.IsZero())
	}
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "id1_converted_report.docx", OutputName("id1", "report.pdf", "docx"))
	assert.Equal(t, "id1_converted_my_photo.jpg", OutputName("id1", "my photo.png", "jpg"))
	assert.Equal(t, "id1_converted_file.txt", OutputName("id1", ".pdf", "txt"))
	assert.Equal(t, "id1_converted_file.txt", OutputName("id1", "dir/.pdf", "txt"))
	assert.Equal(t, "id1_converted_notes.md", OutputName("id1", `C:\docs\notes.txt`, "md"))
	assert.Equal(t, "id1_converted_archive.tar.csv", OutputName("id1", "archive.tar.gz", "csv"))
	assert.Equal(t, "id1_converted_README.pdf", OutputName("id1", "README", "pdf"))
}

func TestOriginalName(t *testing.T) {
	id := "0b9c3f3e-8c5d-4f0e-9a7c-2f4b7c1d9e11"

	assert.Equal(t, "report.docx", OriginalName(id+"_converted_report.docx"))
	assert.Equal(t, "photo.png", OriginalName(id+"_photo.png"))
	assert.Equal(t, "plain.txt", OriginalName("plain.txt"))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"my file (1).txt", "my_file_1.txt"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\doc.docx`, "doc.docx"},
		{"отчёт✓.pdf", "отчёт.pdf"},
		{".hidden", "hidden"},
		{"!!!", "file"},
		{"", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestSanitizeName_Long(t *testing.T) {
	name := strings.Repeat("a", 300) + ".csv"

	out := SanitizeName(name)
	assert.LessOrEqual(t, len(out), 120)
	assert.True(t, strings.HasSuffix(out, ".csv"))
}
