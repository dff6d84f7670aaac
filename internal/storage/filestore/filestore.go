// Пакет filestore — плоское файловое хранилище одной логической области
// ("incoming" или "converted") поверх afero.Fs.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// удаление, проверку существования, размер и перечисление файлов.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// TmpSuffix — суффикс незавершённых записей.
const TmpSuffix = ".tmp"

// ErrNotFound — файл отсутствует в хранилище.
var ErrNotFound = errors.New("файл не найден")

// FileStore — управление файлами одной области хранения.
// Пространство имён плоское: вложенные директории не создаются,
// любой путь сводится к базовому имени.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// SaveResult — результат сохранения файла.
type SaveResult struct {
	// Name — имя файла в области хранения ({uuid}_{имя})
	Name string
	// ID — случайный префикс имени
	ID string
	// Path — путь файла внутри fs
	Path string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// FileInfo — сведения о файле для перечисления.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// New создаёт FileStore. Создаёт директорию, если она не существует.
func New(fs afero.Fs, dir string) (*FileStore, error) {
	if ok, _ := afero.DirExists(fs, dir); ok {
		return &FileStore{fs: fs, dir: dir}, nil
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

// Dir возвращает путь к директории области.
func (s *FileStore) Dir() string {
	return s.dir
}

// Fs возвращает файловую систему хранилища.
func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

// Path возвращает путь к файлу name внутри области.
func (s *FileStore) Path(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		base = "_"
	}
	return filepath.Join(s.dir, base)
}

// Save записывает данные из reader под новым уникальным именем
// {uuid}_{санитизированное originalName}.
func (s *FileStore) Save(reader io.Reader, originalName string) (*SaveResult, error) {
	id := uuid.New().String()
	return s.SaveAs(reader, id, id+"_"+SanitizeName(originalName))
}

// SaveAs записывает данные под заданным именем.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *FileStore) SaveAs(reader io.Reader, id, name string) (*SaveResult, error) {
	fullPath := s.Path(name)
	tmpPath := fullPath + TmpSuffix

	f, err := s.fs.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.fs.Rename(tmpPath, fullPath); err != nil {
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		Name:     filepath.Base(fullPath),
		ID:       id,
		Path:     fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (s *FileStore) Open(name string) (afero.File, error) {
	f, err := s.fs.Open(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", name, err)
	}
	return f, nil
}

// Delete удаляет файл. Возвращает true, если файл был удалён,
// и false без ошибки, если файла уже нет.
func (s *FileStore) Delete(name string) (bool, error) {
	err := s.fs.Remove(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка удаления файла %s: %w", name, err)
}

// Exists проверяет существование обычного файла.
func (s *FileStore) Exists(name string) bool {
	info, err := s.fs.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Size возвращает размер файла в байтах.
func (s *FileStore) Size(name string) (int64, error) {
	info, err := s.fs.Stat(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", name, err)
	}
	return info.Size(), nil
}

// List возвращает обычные файлы области, отсортированные по имени.
// Временные файлы незавершённых записей тоже включаются.
func (s *FileStore) List() ([]FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dir, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Mode().IsRegular() {
			continue
		}
		files = append(files, FileInfo{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    e.Size(),
			ModTime: e.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// OutputName формирует имя результата конвертации:
// {id}_converted_{stem}.{target}
func OutputName(id, originalName, target string) string {
	base := path.Base(strings.ReplaceAll(originalName, `\`, "/"))
	// Расширение отделяется до очистки: у ".pdf" нет основы имени.
	stem := SanitizeName(strings.TrimSuffix(base, path.Ext(base)))
	return fmt.Sprintf("%s_converted_%s.%s", id, stem, target)
}

// OriginalName восстанавливает отображаемое имя из имени хранения:
// отбрасывает префикс {uuid}_ и маркер converted_.
func OriginalName(storageName string) string {
	if i := strings.Index(storageName, "_converted_"); i >= 0 {
		return storageName[i+len("_converted_"):]
	}
	if len(storageName) > 37 && storageName[36] == '_' {
		if _, err := uuid.Parse(storageName[:36]); err == nil {
			return storageName[37:]
		}
	}
	return storageName
}

// SanitizeName приводит клиентское имя файла к безопасному виду:
// базовое имя, только буквы, цифры, дефис, подчёркивание и точка,
// пробелы заменяются на подчёркивание, без ведущих точек.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}

	var result strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' ||
			(r >= 0x0400 && r <= 0x04FF): // Кириллица
			result.WriteRune(r)
		case r == ' ':
			result.WriteRune('_')
		}
	}

	out := strings.TrimLeft(result.String(), "._")
	// Ограничиваем длину имени для предотвращения проблем с FS
	if len(out) > 120 {
		ext := filepath.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = strings.ToValidUTF8(out[:120-len(ext)], "") + ext
	}
	if out == "" {
		return "file"
	}
	return out
}
