package gateway

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocrgateway/pkg/models"
)

var pdfOnly = []string{"application/pdf"}

const maxUpload = 4 << 20

func upload(name, contentType string, content []byte) *models.FileUpload {
	return &models.FileUpload{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// unopenable fails the test if the validator or resolver ever opens it.
func unopenable(t *testing.T, name, contentType string, size int64) *models.FileUpload {
	return &models.FileUpload{
		Filename:    name,
		ContentType: contentType,
		Size:        size,
		Open: func() (io.ReadCloser, error) {
			t.Error("file content must not be read")
			return nil, errors.New("opened")
		},
	}
}

func assertValidation(t *testing.T, err error, field, rule string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation), "want ErrValidation, got %v", err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, field, ve.Field)
	assert.Equal(t, rule, ve.Rule)
	assert.NotEmpty(t, ve.Message)
}

func TestValidateReference(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		rule string
	}{
		{"missing", Input{}, RuleRequired},
		{"null", Input{Fields: map[string]any{"file_path": nil}}, RuleRequired},
		{"empty", Input{Fields: map[string]any{"file_path": ""}}, RuleRequired},
		{"blank", Input{Fields: map[string]any{"file_path": "   "}}, RuleRequired},
		{"number", Input{Fields: map[string]any{"file_path": 42.0}}, RuleString},
		{"object", Input{Fields: map[string]any{"file_path": map[string]any{"a": 1}}}, RuleString},
		{"file instead of string", Input{Files: map[string]*models.FileUpload{
			"file_path": upload("a.pdf", "application/pdf", []byte("%PDF")),
		}}, RuleString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateReference(tt.in)
			assertValidation(t, err, FieldFilePath, tt.rule)
		})
	}
}

func TestValidateReference_OK(t *testing.T) {
	req, err := ValidateReference(Input{Fields: map[string]any{"file_path": " docs/sample.pdf "}})
	require.NoError(t, err)
	assert.Equal(t, models.ByReference{Path: "docs/sample.pdf"}, req)
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name string
		in   func(t *testing.T) Input
		rule string
	}{
		{
			name: "missing",
			in:   func(t *testing.T) Input { return Input{} },
			rule: RuleRequired,
		},
		{
			name: "string instead of file",
			in: func(t *testing.T) Input {
				return Input{Fields: map[string]any{"file": "docs/sample.pdf"}}
			},
			rule: RuleFile,
		},
		{
			name: "empty file",
			in: func(t *testing.T) Input {
				return Input{Files: map[string]*models.FileUpload{"file": unopenable(t, "a.pdf", "application/pdf", 0)}}
			},
			rule: RuleRequired,
		},
		{
			name: "wrong type",
			in: func(t *testing.T) Input {
				return Input{Files: map[string]*models.FileUpload{"file": unopenable(t, "scan.png", "image/png", 1024)}}
			},
			rule: RuleMimes,
		},
		{
			name: "octet-stream with wrong extension",
			in: func(t *testing.T) Input {
				return Input{Files: map[string]*models.FileUpload{"file": unopenable(t, "notes.txt", "application/octet-stream", 10)}}
			},
			rule: RuleMimes,
		},
		{
			name: "ten MiB",
			in: func(t *testing.T) Input {
				return Input{Files: map[string]*models.FileUpload{"file": unopenable(t, "big.pdf", "application/pdf", 10<<20)}}
			},
			rule: RuleMax,
		},
		{
			name: "one byte over",
			in: func(t *testing.T) Input {
				return Input{Files: map[string]*models.FileUpload{"file": unopenable(t, "big.pdf", "application/pdf", maxUpload+1)}}
			},
			rule: RuleMax,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateUpload(tt.in(t), pdfOnly, maxUpload)
			assertValidation(t, err, FieldFile, tt.rule)
		})
	}
}

func TestValidateUpload_OK(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
	}{
		{"declared pdf", "a.pdf", "application/pdf"},
		{"declared with params", "a.bin", "application/pdf; name=a.pdf"},
		{"octet-stream, pdf extension", "Invoice.PDF", "application/octet-stream"},
		{"no type, pdf extension", "a.pdf", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := unopenable(t, tt.filename, tt.contentType, maxUpload)
			req, err := ValidateUpload(Input{Files: map[string]*models.FileUpload{"file": f}}, pdfOnly, maxUpload)
			require.NoError(t, err)
			assert.Same(t, f, req.File)
		})
	}
}

func TestValidate_OptionalFields(t *testing.T) {
	schema := Schema{
		"note":       {Kind: KindString},
		"attachment": {Kind: KindFile, MaxBytes: 10},
	}
	assert.NoError(t, Validate(Input{}, schema))

	err := Validate(Input{Fields: map[string]any{"note": true}}, schema)
	assertValidation(t, err, "note", RuleString)
}

func TestValidationMessages(t *testing.T) {
	_, err := ValidateReference(Input{})
	assert.Contains(t, err.Error(), "The file_path field is required.")

	f := unopenable(t, "scan.png", "image/png", 10)
	_, err = ValidateUpload(Input{Files: map[string]*models.FileUpload{"file": f}}, []string{"application/pdf", "image/tiff"}, maxUpload)
	assert.Contains(t, err.Error(), "must be a file of type: pdf, tiff.")

	f = unopenable(t, "a.pdf", "application/pdf", 10<<20)
	_, err = ValidateUpload(Input{Files: map[string]*models.FileUpload{"file": f}}, pdfOnly, maxUpload)
	assert.Contains(t, err.Error(), "must not be greater than 4096 kilobytes.")
}
