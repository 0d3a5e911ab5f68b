package plugin

import (
	"errors"
	"strconv"
	"strings"
)

// MetaSyntax describes how a script language writes its metadata block.
type MetaSyntax struct {
	// Open and Close delimit the block.
	Open, Close string

	// Separator splits the block into entries. Unless it is a newline, the
	// block is flattened onto one line first.
	Separator string
}

// Metadata syntaxes of the supported script languages.
var (
	JSMeta  = MetaSyntax{Open: "/**", Close: "*/", Separator: "*"}
	LuaMeta = MetaSyntax{Open: "--[[", Close: "]]", Separator: "\n"}
)

// Author is one plugin author.
type Author struct {
	Name string
	// ID is the author's numeric account id, zero when unknown.
	ID uint64
}

// Meta is the content of a plugin's metadata block.
type Meta struct {
	Name        string
	Description string
	Author      Author

	// Fields holds every other "@key value" entry, such as version,
	// invite, source, website, authorLink, donate and patreon.
	Fields map[string]string
}

// Field returns a generic metadata entry.
func (m Meta) Field(key string) string {
	return m.Fields[key]
}

var (
	errNoMetaBlock = errors.New("no metadata block")
	errNotATag     = errors.New("metadata entry is not a tag")
)

// ParseMeta extracts the first metadata block of src and parses its tags.
// Every non-blank entry must be an "@key value" tag.
func ParseMeta(src string, syntax MetaSyntax) (Meta, error) {
	meta := Meta{Fields: make(map[string]string)}
	last := -1

	fail := func(err error) (Meta, error) {
		return Meta{}, &MetaError{Line: last, Err: err}
	}

	_, rest, found := strings.Cut(src, syntax.Open)
	if !found {
		return fail(errNoMetaBlock)
	}
	block, _, _ := strings.Cut(rest, syntax.Close)
	if syntax.Separator != "\n" {
		block = strings.ReplaceAll(block, "\n", "")
	}

	for _, element := range strings.Split(block, syntax.Separator) {
		if strings.TrimSpace(element) == "" {
			continue
		}
		element = strings.TrimSpace(element)
		if len(element) <= 2 {
			last++
			continue
		}
		if !strings.HasPrefix(element, "@") {
			return fail(errNotATag)
		}

		key, value, _ := strings.Cut(element[1:], " ")
		value = strings.TrimSpace(value)
		if key == "" {
			return fail(errNotATag)
		}

		switch key {
		case "name":
			meta.Name = value
		case "description":
			meta.Description = value
		case "author":
			meta.Author.Name = value
		case "authorId":
			// Unparsable ids leave the author anonymous rather than
			// rejecting the plugin.
			if id, err := strconv.ParseUint(value, 10, 64); err == nil {
				meta.Author.ID = id
			}
		default:
			meta.Fields[key] = value
		}
		last++
	}
	return meta, nil
}
