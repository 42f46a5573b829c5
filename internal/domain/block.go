package domain

import (
	"encoding/json"
	"fmt"
)

// Block is one node of a Notion page's content tree. Children are attached by the
// fetcher for blocks flagged HasChildren; top-level fields the pipeline does not
// interpret (object, parent, timestamps, ...) survive a decode/encode round trip.
type Block struct {
	ID          string
	Type        string
	HasChildren bool
	Content     BlockContent
	Children    []Block

	extra map[string]json.RawMessage
}

// BlockContent is the type-specific payload of a block. The set of implementations
// is closed: *TextContent, *ImageContent and *RawContent.
type BlockContent interface {
	payload() (json.RawMessage, error)
}

// Block types whose payload carries a rich_text array.
var textBlockTypes = map[string]bool{
	"paragraph":          true,
	"heading_1":          true,
	"heading_2":          true,
	"heading_3":          true,
	"bulleted_list_item": true,
	"numbered_list_item": true,
	"quote":              true,
	"callout":            true,
	"toggle":             true,
	"to_do":              true,
	"code":               true,
}

const BlockTypeImage = "image"

// Image source kinds.
const (
	ImageKindFile       = "file"
	ImageKindExternal   = "external"
	ImageKindFileUpload = "file_upload"
)

// RichText is a single run of rich text. Only plain_text is interpreted.
type RichText struct {
	PlainText string

	raw json.RawMessage
}

func (t RichText) MarshalJSON() ([]byte, error) {
	if len(t.raw) > 0 {
		return t.raw, nil
	}
	return json.Marshal(map[string]any{
		"type":       "text",
		"text":       map[string]any{"content": t.PlainText},
		"plain_text": t.PlainText,
	})
}

func (t *RichText) UnmarshalJSON(data []byte) error {
	var v struct {
		PlainText string `json:"plain_text"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	t.PlainText = v.PlainText
	t.raw = append(json.RawMessage(nil), data...)
	return nil
}

// TextContent is the payload of paragraph-like blocks.
type TextContent struct {
	RichText []RichText

	raw json.RawMessage
}

func (c *TextContent) payload() (json.RawMessage, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	rt := c.RichText
	if rt == nil {
		rt = []RichText{}
	}
	return json.Marshal(map[string]any{"rich_text": rt})
}

// ImageContent is the payload of an image block.
type ImageContent struct {
	Kind       string
	URL        string
	ExpiryTime string
	Caption    []RichText

	extra map[string]json.RawMessage
}

func (c *ImageContent) payload() (json.RawMessage, error) {
	fields := make(map[string]any, len(c.extra)+3)
	for k, v := range c.extra {
		fields[k] = v
	}
	src := map[string]string{"url": c.URL}
	if c.ExpiryTime != "" {
		src["expiry_time"] = c.ExpiryTime
	}
	caption := c.Caption
	if caption == nil {
		caption = []RichText{}
	}
	fields["type"] = c.Kind
	fields[c.Kind] = src
	fields["caption"] = caption
	return json.Marshal(fields)
}

// AsExternal returns a copy pointing at url as an external image. Caption and any
// other payload fields are kept; the expiry is dropped.
func (c *ImageContent) AsExternal(url string) *ImageContent {
	out := &ImageContent{
		Kind:    ImageKindExternal,
		URL:     url,
		Caption: c.Caption,
	}
	if len(c.extra) > 0 {
		out.extra = make(map[string]json.RawMessage, len(c.extra))
		for k, v := range c.extra {
			out.extra[k] = v
		}
	}
	return out
}

// CaptionText concatenates the caption runs.
func (c *ImageContent) CaptionText() string {
	var s string
	for _, t := range c.Caption {
		s += t.PlainText
	}
	return s
}

// RawContent carries the payload of any block type the pipeline does not model.
type RawContent struct {
	Raw json.RawMessage
}

func (c *RawContent) payload() (json.RawMessage, error) {
	return c.Raw, nil
}

func (c *RawContent) richText() []RichText {
	var v struct {
		RichText []RichText `json:"rich_text"`
	}
	if len(c.Raw) == 0 || json.Unmarshal(c.Raw, &v) != nil {
		return nil
	}
	return v.RichText
}

// Image returns the block's image payload, if it is an image block.
func (b *Block) Image() (*ImageContent, bool) {
	img, ok := b.Content.(*ImageContent)
	return img, ok
}

// Text returns the block's rich text payload, if it has one.
func (b *Block) Text() (*TextContent, bool) {
	txt, ok := b.Content.(*TextContent)
	return txt, ok
}

// RichText returns the rich_text runs of the block's payload, whether or not the
// block type is modeled.
func (b *Block) RichText() []RichText {
	switch c := b.Content.(type) {
	case *TextContent:
		return c.RichText
	case *RawContent:
		return c.richText()
	}
	return nil
}

func (b Block) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(b.extra)+5)
	for k, v := range b.extra {
		fields[k] = v
	}

	var err error
	if fields["id"], err = json.Marshal(b.ID); err != nil {
		return nil, err
	}
	if fields["type"], err = json.Marshal(b.Type); err != nil {
		return nil, err
	}
	if fields["has_children"], err = json.Marshal(b.HasChildren); err != nil {
		return nil, err
	}

	if b.Type != "" && b.Content != nil {
		payload, err := b.Content.payload()
		if err != nil {
			return nil, fmt.Errorf("encode %s block %s: %w", b.Type, b.ID, err)
		}
		if len(payload) > 0 {
			fields[b.Type] = payload
		}
	}

	if len(b.Children) > 0 {
		if fields["children"], err = json.Marshal(b.Children); err != nil {
			return nil, err
		}
	}

	return json.Marshal(fields)
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*b = Block{}
	if err := takeField(fields, "id", &b.ID); err != nil {
		return err
	}
	if err := takeField(fields, "type", &b.Type); err != nil {
		return err
	}
	if err := takeField(fields, "has_children", &b.HasChildren); err != nil {
		return err
	}
	if err := takeField(fields, "children", &b.Children); err != nil {
		return fmt.Errorf("decode children of %s: %w", b.ID, err)
	}

	var payload json.RawMessage
	if b.Type != "" {
		payload = fields[b.Type]
		delete(fields, b.Type)
	}

	content, err := decodeContent(b.Type, payload)
	if err != nil {
		return fmt.Errorf("decode %s block %s: %w", b.Type, b.ID, err)
	}
	b.Content = content

	if len(fields) > 0 {
		b.extra = fields
	}
	return nil
}

func decodeContent(blockType string, payload json.RawMessage) (BlockContent, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return &RawContent{Raw: payload}, nil
	}

	switch {
	case blockType == BlockTypeImage:
		return decodeImage(payload)
	case textBlockTypes[blockType]:
		var v struct {
			RichText []RichText `json:"rich_text"`
		}
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return &TextContent{RichText: v.RichText, raw: payload}, nil
	default:
		return &RawContent{Raw: payload}, nil
	}
}

// decodeImage keeps payloads without a source kind as raw content.
func decodeImage(payload json.RawMessage) (BlockContent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}

	img := &ImageContent{}
	if err := takeField(fields, "type", &img.Kind); err != nil {
		return nil, err
	}
	if err := takeField(fields, "caption", &img.Caption); err != nil {
		return nil, err
	}

	if img.Kind == "" {
		return &RawContent{Raw: payload}, nil
	}

	var src struct {
		URL        string `json:"url"`
		ExpiryTime string `json:"expiry_time"`
	}
	if err := takeField(fields, img.Kind, &src); err != nil {
		return nil, err
	}
	img.URL = src.URL
	img.ExpiryTime = src.ExpiryTime

	if len(fields) > 0 {
		img.extra = fields
	}
	return img, nil
}

// takeField decodes fields[key] into dst, if present, and removes it from fields.
func takeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

// ParseBlocks decodes a serialized block tree.
func ParseBlocks(data []byte) ([]Block, error) {
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("parse blocks: %w", err)
	}
	return blocks, nil
}

// EncodeBlocks serializes a block tree for storage in Article.Content.
func EncodeBlocks(blocks []Block) (string, error) {
	if blocks == nil {
		blocks = []Block{}
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("encode blocks: %w", err)
	}
	return string(data), nil
}
