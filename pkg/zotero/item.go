package zotero

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Item is the API envelope around one library object: a book, a note, an
// attachment. Reads return the full envelope; writes send only Data.
type Item struct {
	Key     string          `json:"key"`
	Version int             `json:"version"`
	Library Library         `json:"library,omitempty"`
	Links   map[string]Link `json:"links,omitempty"`
	Meta    ItemMeta        `json:"meta,omitempty"`
	Data    ItemData        `json:"data"`
}

// Library identifies which library an object belongs to.
type Library struct {
	Type string `json:"type,omitempty"`
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Link is one entry of an object's links map.
type Link struct {
	Href string `json:"href,omitempty"`
	Type string `json:"type,omitempty"`
}

// ItemMeta carries server-computed display fields.
type ItemMeta struct {
	CreatorSummary string `json:"creatorSummary,omitempty"`
	ParsedDate     string `json:"parsedDate,omitempty"`
	NumChildren    int    `json:"numChildren,omitempty"`
}

// Creator is one author, editor, or translator entry.
type Creator struct {
	CreatorType string `json:"creatorType,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	// Name is the single-field form used for institutional creators.
	Name string `json:"name,omitempty"`
}

// Tag is one tag entry. Type 1 marks tags imported automatically; manually
// written tags omit the field.
type Tag struct {
	Tag  string `json:"tag"`
	Type int    `json:"type,omitempty"`
}

// Relations maps relation predicates (dc:relation, owl:sameAs) to item URIs.
type Relations map[string]RelationList

// RelationList holds the URIs for one predicate. The API serializes a single
// URI as a bare string and several as an array; both forms decode into the
// slice, and a one-element slice encodes back to the bare string.
type RelationList []string

// UnmarshalJSON accepts either a string or an array of strings.
func (l *RelationList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*l = RelationList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = RelationList(many)
	return nil
}

// MarshalJSON emits the bare-string form for a single URI.
func (l RelationList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// Contains reports whether uri is already in the list.
func (l RelationList) Contains(uri string) bool {
	for _, u := range l {
		if u == uri {
			return true
		}
	}
	return false
}

// ItemData is the writable portion of an item. The named fields cover the
// book, note, and attachment fields the pipelines touch; every other field
// the server returns is captured on decode and restored on encode, so a
// fetched item of any type round-trips through an update without losing
// data.
type ItemData struct {
	Key      string `json:"key,omitempty"`
	Version  int    `json:"version,omitempty"`
	ItemType string `json:"itemType,omitempty"`

	Title        string    `json:"title,omitempty"`
	Creators     []Creator `json:"creators,omitempty"`
	AbstractNote string    `json:"abstractNote,omitempty"`
	Series       string    `json:"series,omitempty"`
	SeriesNumber string    `json:"seriesNumber,omitempty"`
	Edition      string    `json:"edition,omitempty"`
	Place        string    `json:"place,omitempty"`
	Publisher    string    `json:"publisher,omitempty"`
	Date         string    `json:"date,omitempty"`
	NumPages     string    `json:"numPages,omitempty"`
	Language     string    `json:"language,omitempty"`
	ISBN         string    `json:"ISBN,omitempty"`
	ShortTitle   string    `json:"shortTitle,omitempty"`
	Url          string    `json:"url,omitempty"`
	AccessDate   string    `json:"accessDate,omitempty"`
	Extra        string    `json:"extra,omitempty"`

	Tags        []Tag     `json:"tags,omitempty"`
	Collections []string  `json:"collections,omitempty"`
	Relations   Relations `json:"relations,omitempty"`

	DateAdded    string `json:"dateAdded,omitempty"`
	DateModified string `json:"dateModified,omitempty"`

	// Note items.
	Note       string `json:"note,omitempty"`
	ParentItem string `json:"parentItem,omitempty"`

	// Attachment items.
	LinkMode    string `json:"linkMode,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Charset     string `json:"charset,omitempty"`
	Filename    string `json:"filename,omitempty"`

	// unknown holds fields of the fetched JSON that have no named
	// counterpart above, keyed by their wire name.
	unknown map[string]json.RawMessage
}

// itemDataKeys is the set of wire names claimed by ItemData's named fields.
var itemDataKeys = jsonKeys(reflect.TypeOf(ItemData{}))

func jsonKeys(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			keys[name] = struct{}{}
		}
	}
	return keys
}

// UnmarshalJSON decodes the named fields and stashes everything else.
func (d *ItemData) UnmarshalJSON(b []byte) error {
	type plain ItemData
	var base plain
	if err := json.Unmarshal(b, &base); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for key := range raw {
		if _, known := itemDataKeys[key]; known {
			delete(raw, key)
		}
	}
	*d = ItemData(base)
	if len(raw) > 0 {
		d.unknown = raw
	}
	return nil
}

// MarshalJSON re-emits the stashed fields alongside the named ones.
func (d ItemData) MarshalJSON() ([]byte, error) {
	type plain ItemData
	b, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	if len(d.unknown) == 0 {
		return b, nil
	}
	merged := make(map[string]json.RawMessage, len(d.unknown)+16)
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for key, value := range d.unknown {
		if _, taken := merged[key]; !taken {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// IsBook reports whether the item is a book entry.
func (d *ItemData) IsBook() bool {
	return d.ItemType == "book"
}

// FirstAuthor returns the display name of the first creator with type
// "author", or an empty string when the item has none.
func (d *ItemData) FirstAuthor() string {
	for _, c := range d.Creators {
		if c.CreatorType != "author" {
			continue
		}
		if c.Name != "" {
			return c.Name
		}
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	return ""
}

// HasTag reports whether the item carries the tag, compared
// case-insensitively.
func (d *ItemData) HasTag(name string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t.Tag, name) {
			return true
		}
	}
	return false
}

// AddTag appends a tag unless an equal tag (case-insensitive) is already
// present. It reports whether the tag was added.
func (d *ItemData) AddTag(name string) bool {
	if d.HasTag(name) {
		return false
	}
	d.Tags = append(d.Tags, Tag{Tag: name})
	return true
}

// AddRelation records a relation under the given predicate unless the URI is
// already present. It reports whether the relation was added.
func (d *ItemData) AddRelation(predicate, uri string) bool {
	if d.Relations == nil {
		d.Relations = Relations{}
	}
	if d.Relations[predicate].Contains(uri) {
		return false
	}
	d.Relations[predicate] = append(d.Relations[predicate], uri)
	return true
}

// ExtraField looks up a "key: value" line in the Extra free-text field,
// the convention used for CSL variables like original-date.
func (d *ItemData) ExtraField(key string) (string, bool) {
	prefix := key + ":"
	for _, line := range strings.Split(d.Extra, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
			return strings.TrimSpace(trimmed[len(prefix):]), true
		}
		if strings.EqualFold(trimmed, key+":") {
			return "", true
		}
	}
	return "", false
}

// SetExtraField writes a "key: value" line into Extra, replacing an existing
// line for the key and leaving every other line untouched. It reports
// whether Extra changed.
func (d *ItemData) SetExtraField(key, value string) bool {
	entry := key + ": " + value
	if strings.TrimSpace(d.Extra) == "" {
		d.Extra = entry
		return true
	}

	prefix := key + ":"
	lines := strings.Split(d.Extra, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToLower(trimmed), strings.ToLower(prefix)) {
			continue
		}
		if trimmed == entry {
			return false
		}
		lines[i] = entry
		d.Extra = strings.Join(lines, "\n")
		return true
	}

	d.Extra = d.Extra + "\n" + entry
	return true
}
