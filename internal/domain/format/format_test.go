package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistry_TotalMapping проверяет, что каждое известное расширение
// имеет категорию и положительный лимит.
func TestRegistry_TotalMapping(t *testing.T) {
	exts := All()
	require.NotEmpty(t, exts)

	for _, ext := range exts {
		assert.True(t, IsKnown(ext), "расширение %s должно быть известным", ext)
		assert.NotEqual(t, Unknown, CategoryOf(ext), "расширение %s без категории", ext)
		assert.Positive(t, MaxSizeOf(ext), "лимит для %s должен быть > 0", ext)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		ext  string
		want Category
	}{
		{"jpg", Image},
		{".PNG", Image},
		{"svg", Image},
		{"pdf", Document},
		{"html", Document},
		{"htm", Document},
		{"xlsx", Spreadsheet},
		{"csv", Spreadsheet},
		{"pptx", Presentation},
		{"json", Data},
		{"xml", Data},
		{"zip", Archive},
		{"mp3", Audio},
		{"mkv", Video},
		{"go", Code},
		{"yaml", Code},
		{"exe", Unknown},
		{"", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.ext))
		})
	}
}

func TestMaxSizeOf(t *testing.T) {
	assert.Equal(t, 100*MB, MaxSizeOf("png"))
	assert.Equal(t, 200*MB, MaxSizeOf("docx"))
	assert.Equal(t, 100*MB, MaxSizeOf("csv"))
	assert.Equal(t, 200*MB, MaxSizeOf("ppt"))
	assert.Equal(t, 50*MB, MaxSizeOf("json"))
	assert.Equal(t, 500*MB, MaxSizeOf("7z"))
	assert.Equal(t, 200*MB, MaxSizeOf("flac"))
	assert.Equal(t, 1000*MB, MaxSizeOf("mp4"))
	assert.Equal(t, 10*MB, MaxSizeOf("py"))
	assert.Equal(t, DefaultMaxSize, MaxSizeOf("unknown-ext"))
}

func TestExtOf(t *testing.T) {
	assert.Equal(t, "pdf", ExtOf("report.PDF"))
	assert.Equal(t, "gz", ExtOf("backup.tar.gz"))
	assert.Equal(t, "", ExtOf("Makefile"))
	assert.Equal(t, "", ExtOf("name."))
	assert.Equal(t, "", ExtOf("dir.d/file"))
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.00 B"},
		{512, "512.00 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{50 * MB, "50.00 MB"},
		{1000 * MB, "1000.00 MB"},
		{3 * GB, "3.00 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.in))
	}
}

func TestSupported(t *testing.T) {
	s := Supported()

	assert.Contains(t, s, "image_formats")
	assert.Contains(t, s, "code_formats")
	assert.Equal(t, All(), s["all_formats"])
	assert.Contains(t, s["data_formats"], "json")

	// Изменение результата не должно влиять на реестр.
	s["image_formats"][0] = "changed"
	assert.Equal(t, "jpg", Supported()["image_formats"][0])
}

func TestDescribe(t *testing.T) {
	info := Describe(".JSON")
	assert.True(t, info.Supported)
	assert.Equal(t, "json", info.Extension)
	assert.Equal(t, Data, info.Category)
	assert.Equal(t, "50.00 MB", info.MaxSizeFormatted)

	info = Describe("exe")
	assert.False(t, info.Supported)
	assert.Contains(t, info.Error, ".exe")
}
