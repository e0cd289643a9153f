package gateway

import (
	"fmt"
	"mime"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"ocrgateway/pkg/models"
)

// Field names of the two inbound request shapes.
const (
	FieldFilePath = "file_path"
	FieldFile     = "file"
)

// Rule names reported in ValidationError.Rule.
const (
	RuleRequired = "required"
	RuleString   = "string"
	RuleFile     = "file"
	RuleMimes    = "mimes"
	RuleMax      = "max"
)

// Kind is the expected type of a field.
type Kind int

const (
	KindString Kind = iota
	KindFile
)

// Rule is the constraint declared for one field.
type Rule struct {
	Required  bool
	Kind      Kind
	MIMETypes []string // KindFile only; empty allows any type
	MaxBytes  int64    // KindFile only; zero means unbounded
}

// Schema maps field names to their constraints.
type Schema map[string]Rule

// Input is an inbound request before validation: plain values and file
// descriptors keyed by field name.
type Input struct {
	Fields map[string]any
	Files  map[string]*models.FileUpload
}

// ReferenceSchema requires a non-empty storage path.
func ReferenceSchema() Schema {
	return Schema{
		FieldFilePath: {Required: true, Kind: KindString},
	}
}

// UploadSchema requires a file of an accepted type no larger than maxBytes.
func UploadSchema(accepted []string, maxBytes int64) Schema {
	return Schema{
		FieldFile: {Required: true, Kind: KindFile, MIMETypes: accepted, MaxBytes: maxBytes},
	}
}

// Validate checks in against schema without reading any file content.
// Fields are checked in name order so the reported field is deterministic.
func Validate(in Input, schema Schema) error {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := validateField(in, name, schema[name]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateReference validates in against ReferenceSchema.
func ValidateReference(in Input) (models.ByReference, error) {
	if err := Validate(in, ReferenceSchema()); err != nil {
		return models.ByReference{}, err
	}
	path, _ := in.Fields[FieldFilePath].(string)
	return models.ByReference{Path: strings.TrimSpace(path)}, nil
}

// ValidateUpload validates in against UploadSchema.
func ValidateUpload(in Input, accepted []string, maxBytes int64) (models.ByUpload, error) {
	if err := Validate(in, UploadSchema(accepted, maxBytes)); err != nil {
		return models.ByUpload{}, err
	}
	return models.ByUpload{File: in.Files[FieldFile]}, nil
}

func validateField(in Input, name string, rule Rule) error {
	value, hasValue := in.Fields[name]
	file, hasFile := in.Files[name]
	if hasFile && file == nil {
		hasFile = false
	}

	switch rule.Kind {
	case KindString:
		if hasFile {
			return invalid(name, RuleString, "The %s field must be a string.", name)
		}
		if !hasValue || value == nil {
			if rule.Required {
				return invalid(name, RuleRequired, "The %s field is required.", name)
			}
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return invalid(name, RuleString, "The %s field must be a string.", name)
		}
		if rule.Required && strings.TrimSpace(s) == "" {
			return invalid(name, RuleRequired, "The %s field is required.", name)
		}

	case KindFile:
		if !hasFile {
			if hasValue && value != nil && value != "" {
				return invalid(name, RuleFile, "The %s field must be a file.", name)
			}
			if rule.Required {
				return invalid(name, RuleRequired, "The %s field is required.", name)
			}
			return nil
		}
		if rule.Required && file.Size == 0 {
			return invalid(name, RuleRequired, "The %s field is required.", name)
		}
		if len(rule.MIMETypes) > 0 && !slices.Contains(rule.MIMETypes, DeclaredType(file)) {
			return invalid(name, RuleMimes, "The %s field must be a file of type: %s.", name, typeList(rule.MIMETypes))
		}
		if rule.MaxBytes > 0 && file.Size > rule.MaxBytes {
			return TooLarge(name, rule.MaxBytes)
		}
	}
	return nil
}

// DeclaredType is the upload's MIME type as announced by the client. A missing
// or generic Content-Type falls back to the filename extension.
func DeclaredType(f *models.FileUpload) string {
	if t := baseType(f.ContentType); t != "" && t != "application/octet-stream" {
		return t
	}
	return baseType(mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Filename))))
}

func baseType(contentType string) string {
	if contentType == "" {
		return ""
	}
	t, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return t
}

// typeList renders "application/pdf, image/tiff" as "pdf, tiff".
func typeList(types []string) string {
	short := make([]string, len(types))
	for i, t := range types {
		if _, sub, ok := strings.Cut(t, "/"); ok {
			t = sub
		}
		short[i] = t
	}
	return strings.Join(short, ", ")
}

// TooLarge reports that field exceeds maxBytes.
func TooLarge(field string, maxBytes int64) *ValidationError {
	return invalid(field, RuleMax, "The %s field must not be greater than %d kilobytes.", field, maxBytes/1024)
}

func invalid(field, rule, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}
