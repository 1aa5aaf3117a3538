package chat

import (
	"encoding/json"
	"errors"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"roomchat/internal/pkg/errs"
)

// Variant tags the shape of a message's content.
type Variant string

const (
	VariantText     Variant = "text"
	VariantImage    Variant = "image"
	VariantBilibili Variant = "bilibili"
	VariantMarkdown Variant = "markdown"
	VariantFile     Variant = "file"
	VariantSystem   Variant = "system"
)

const (
	MaxTextLength          = 1000
	MaxCaptionLength       = 200
	MaxMarkdownTitleLength = 100
	MaxMarkdownBodyLength  = 5000

	// summaryLength bounds reply previews, in characters.
	summaryLength = 50
)

var bvidPattern = regexp.MustCompile(`^BV[A-Za-z0-9]{10}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("bvid", func(fl validator.FieldLevel) bool {
		return bvidPattern.MatchString(fl.Field().String())
	})
	return v
}

// Content is a message body. Each variant carries its own fields and validation rules.
type Content interface {
	Variant() Variant

	// Summary is a short plain description used in reply previews.
	Summary() string

	normalize()
	sanitize()
	searchText() string
}

type TextContent struct {
	Text string `json:"text" validate:"required,max=1000"`
}

type ImageContent struct {
	ImageRef string `json:"imageRef" validate:"required,max=1024"`
	Caption  string `json:"caption,omitempty" validate:"max=200"`
}

type BilibiliContent struct {
	BVID  string `json:"bvid" validate:"bvid"`
	Title string `json:"title,omitempty" validate:"max=200"`
}

type MarkdownContent struct {
	Title string `json:"title,omitempty" validate:"max=100"`
	Body  string `json:"body" validate:"required,max=5000"`
}

// FileContent references a previously issued file. Name, type and size are filled
// from the file record, never from the client.
type FileContent struct {
	FileID   string `json:"fileId" validate:"required,max=64"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// SystemContent is produced by the server only.
type SystemContent struct {
	Text string `json:"text"`
}

func (*TextContent) Variant() Variant     { return VariantText }
func (*ImageContent) Variant() Variant    { return VariantImage }
func (*BilibiliContent) Variant() Variant { return VariantBilibili }
func (*MarkdownContent) Variant() Variant { return VariantMarkdown }
func (*FileContent) Variant() Variant     { return VariantFile }
func (*SystemContent) Variant() Variant   { return VariantSystem }

func (c *TextContent) Summary() string { return truncate(c.Text, summaryLength) }
func (c *ImageContent) Summary() string {
	return strings.TrimSpace("[Image] " + truncate(c.Caption, summaryLength))
}
func (c *BilibiliContent) Summary() string { return "[Video] " + c.BVID }
func (c *MarkdownContent) Summary() string {
	if c.Title != "" {
		return "[Markdown] " + truncate(c.Title, summaryLength)
	}
	return "[Markdown] " + truncate(c.Body, summaryLength)
}
func (c *FileContent) Summary() string   { return "[File] " + truncate(c.Name, summaryLength) }
func (c *SystemContent) Summary() string { return truncate(c.Text, summaryLength) }

func (c *TextContent) normalize()     { c.Text = strings.TrimSpace(c.Text) }
func (c *ImageContent) normalize()    { c.ImageRef, c.Caption = strings.TrimSpace(c.ImageRef), strings.TrimSpace(c.Caption) }
func (c *BilibiliContent) normalize() { c.BVID, c.Title = strings.TrimSpace(c.BVID), strings.TrimSpace(c.Title) }
func (c *MarkdownContent) normalize() { c.Title, c.Body = strings.TrimSpace(c.Title), strings.TrimSpace(c.Body) }
func (c *FileContent) normalize()     { c.FileID = strings.TrimSpace(c.FileID) }
func (c *SystemContent) normalize()   {}

func (c *TextContent) sanitize()     { c.Text = html.EscapeString(c.Text) }
func (c *ImageContent) sanitize()    { c.Caption = html.EscapeString(c.Caption) }
func (c *BilibiliContent) sanitize() { c.Title = html.EscapeString(c.Title) }
func (c *MarkdownContent) sanitize() {
	c.Title, c.Body = html.EscapeString(c.Title), html.EscapeString(c.Body)
}
func (c *FileContent) sanitize()   { c.Name = html.EscapeString(c.Name) }
func (c *SystemContent) sanitize() { c.Text = html.EscapeString(c.Text) }

func (c *TextContent) searchText() string     { return c.Text }
func (c *ImageContent) searchText() string    { return c.Caption }
func (c *BilibiliContent) searchText() string { return strings.TrimSpace(c.BVID + " " + c.Title) }
func (c *MarkdownContent) searchText() string { return strings.TrimSpace(c.Title + "\n" + c.Body) }
func (c *FileContent) searchText() string     { return c.Name }
func (c *SystemContent) searchText() string   { return c.Text }

// MarshalJSON methods flatten the variant tag into the object.

func (c TextContent) MarshalJSON() ([]byte, error) {
	type plain TextContent
	return withVariant(VariantText, plain(c))
}

func (c ImageContent) MarshalJSON() ([]byte, error) {
	type plain ImageContent
	return withVariant(VariantImage, plain(c))
}

func (c BilibiliContent) MarshalJSON() ([]byte, error) {
	type plain BilibiliContent
	return withVariant(VariantBilibili, plain(c))
}

func (c MarkdownContent) MarshalJSON() ([]byte, error) {
	type plain MarkdownContent
	return withVariant(VariantMarkdown, plain(c))
}

func (c FileContent) MarshalJSON() ([]byte, error) {
	type plain FileContent
	return withVariant(VariantFile, plain(c))
}

func (c SystemContent) MarshalJSON() ([]byte, error) {
	type plain SystemContent
	return withVariant(VariantSystem, plain(c))
}

func withVariant(v Variant, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	tag := `{"variant":"` + string(v) + `"`
	if len(raw) <= 2 {
		return []byte(tag + "}"), nil
	}
	return append([]byte(tag+","), raw[1:]...), nil
}

// newContent returns an empty value for variant, or nil when unknown.
func newContent(v Variant) Content {
	switch v {
	case VariantText:
		return &TextContent{}
	case VariantImage:
		return &ImageContent{}
	case VariantBilibili:
		return &BilibiliContent{}
	case VariantMarkdown:
		return &MarkdownContent{}
	case VariantFile:
		return &FileContent{}
	case VariantSystem:
		return &SystemContent{}
	}
	return nil
}

func decodeContent(raw json.RawMessage) (Content, error) {
	var head struct {
		Variant Variant `json:"variant"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errs.NewError(errs.ErrInvalidJSONFormat)
	}

	c := newContent(head.Variant)
	if c == nil || head.Variant == VariantSystem {
		return nil, errs.NewError(errs.ErrUnsupportedVariant)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, errs.NewError(errs.ErrInvalidJSONFormat)
	}
	return c, nil
}

// ParseContent decodes and validates client-submitted content. System content is
// rejected. The result is not yet sanitized.
func ParseContent(raw json.RawMessage) (Content, error) {
	if len(raw) == 0 {
		return nil, errs.NewError(errs.ErrMessageEmpty)
	}

	c, err := decodeContent(raw)
	if err != nil {
		return nil, err
	}

	c.normalize()
	if err := validate.Struct(c); err != nil {
		return nil, contentError(c.Variant(), err)
	}
	return c, nil
}

// contentError maps the first failed rule to the client-facing error.
func contentError(v Variant, err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	fe := ves[0]

	switch fe.Field() {
	case "Text":
		if fe.Tag() == "required" {
			return errs.NewError(errs.ErrMessageEmpty)
		}
		return errs.NewError(errs.ErrMessageContentTooLong, MaxTextLength)
	case "ImageRef":
		return errs.NewError(errs.ErrImageRefMissing)
	case "Caption":
		return errs.NewError(errs.ErrCaptionTooLong, MaxCaptionLength)
	case "BVID":
		return errs.NewError(errs.ErrInvalidBilibiliID)
	case "Body":
		if fe.Tag() == "required" {
			return errs.NewError(errs.ErrMessageEmpty)
		}
		return errs.NewError(errs.ErrMarkdownBodyTooLong, MaxMarkdownBodyLength)
	case "Title":
		if v == VariantMarkdown {
			return errs.NewError(errs.ErrMarkdownTitleTooLong, MaxMarkdownTitleLength)
		}
	}
	return errs.NewError(errs.ErrInvalidParams)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
