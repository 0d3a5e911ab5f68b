package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/dshills/bdcompat/internal/plugin"
)

// Installed reports what Install did with one URL.
type Installed struct {
	URL      string
	Path     string
	Version  string
	Replaced bool
	Skipped  bool
}

// Install downloads each non-empty URL into folder under the URL's file
// name. An existing file is only replaced by a newer @version; when either
// version is missing or unparsable the download wins. A failing URL does
// not stop the others; the failures are joined.
func (f *Fetcher) Install(ctx context.Context, files plugin.Files, folder string, urls []string) ([]Installed, error) {
	var (
		results []Installed
		errs    []error
	)
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		result, err := f.install(ctx, files, folder, strings.TrimSpace(u))
		if err != nil {
			f.log.Errorw("Could not install remote plugin", "url", u, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func (f *Fetcher) install(ctx context.Context, files plugin.Files, folder, rawURL string) (Installed, error) {
	resp, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return Installed{}, err
	}

	// Behind the proxy the final URL is the proxy's; name after the request.
	source := resp.URL
	if resp.Proxied {
		source = rawURL
	}
	name, err := fileName(source)
	if err != nil {
		return Installed{}, err
	}

	result := Installed{
		URL:     rawURL,
		Path:    path.Join(folder, name),
		Version: versionOf(name, string(resp.Body)),
	}

	existing, err := files.ReadFile(result.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return result, err
	default:
		current := versionOf(name, string(existing))
		if !newer(result.Version, current) {
			f.log.Debugw("Remote plugin is not newer", "path", result.Path, "remote", result.Version, "local", current)
			result.Skipped = true
			return result, nil
		}
		result.Replaced = true
	}

	if err := files.WriteFile(result.Path, resp.Body); err != nil {
		return result, err
	}
	f.log.Infow("Installed remote plugin", "path", result.Path, "version", result.Version, "replaced", result.Replaced)
	return result, nil
}

// fileName returns the last path element of a URL.
func fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", ErrNoFileName
	}
	return name, nil
}

// versionOf reads @version from a plugin source, or "".
func versionOf(name, src string) string {
	syntax := plugin.JSMeta
	if strings.HasSuffix(name, ".lua") {
		syntax = plugin.LuaMeta
	}
	meta, err := plugin.ParseMeta(src, syntax)
	if err != nil {
		return ""
	}
	return meta.Field("version")
}

// newer reports whether remote should replace local.
func newer(remote, local string) bool {
	rv, err := semver.NewVersion(remote)
	if err != nil {
		return true
	}
	lv, err := semver.NewVersion(local)
	if err != nil {
		return true
	}
	return rv.GreaterThan(lv)
}
