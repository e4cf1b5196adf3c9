package media

import (
	"path"
	"sort"
	"strings"
)

// MediaType is the asset family used to namespace remote keys.
type MediaType string

const (
	TypeImage   MediaType = "image"
	TypeVideo   MediaType = "video"
	TypeModel3D MediaType = "model_3d"
)

// Dir returns the key segment for the type.
func (t MediaType) Dir() string {
	switch t {
	case TypeVideo:
		return "videos"
	case TypeModel3D:
		return "model_3ds"
	default:
		return "images"
	}
}

var keySegments = map[string]MediaType{
	"images":    TypeImage,
	"videos":    TypeVideo,
	"model_3ds": TypeModel3D,
}

var extensions = map[string]MediaType{
	".jpg": TypeImage, ".jpeg": TypeImage, ".png": TypeImage, ".gif": TypeImage,
	".tif": TypeImage, ".tiff": TypeImage, ".bmp": TypeImage, ".webp": TypeImage,
	".dcm": TypeImage,
	".mp4": TypeVideo, ".mov": TypeVideo, ".avi": TypeVideo, ".webm": TypeVideo,
	".mpg": TypeVideo, ".mpeg": TypeVideo, ".m4v": TypeVideo, ".mkv": TypeVideo,
	".stl": TypeModel3D, ".ply": TypeModel3D, ".obj": TypeModel3D, ".glb": TypeModel3D,
	".gltf": TypeModel3D, ".fbx": TypeModel3D, ".3ds": TypeModel3D,
}

// DetectMediaType infers the asset family from the key naming convention,
// then MIME type, then file extension. ok is false when nothing matched and
// the image default was used.
func DetectMediaType(md Metadata) (t MediaType, ok bool) {
	keys := collect(md, remoteKeyFields...)
	var byKey MediaType
	for _, k := range keys {
		for _, seg := range strings.Split(k, "/") {
			mt, found := keySegments[seg]
			if !found {
				continue
			}
			// a model_3ds segment anywhere settles it
			if mt == TypeModel3D {
				return mt, true
			}
			if byKey == "" {
				byKey = mt
			}
		}
	}
	if byKey != "" {
		return byKey, true
	}
	for _, m := range collect(md, mimeFields...) {
		if mt, found := fromMIME(m); found {
			return mt, true
		}
	}
	names := append(append([]string(nil), keys...), collect(md, filenameField, "original_filename")...)
	for _, n := range names {
		if mt, found := extensions[strings.ToLower(path.Ext(n))]; found {
			return mt, true
		}
	}
	return TypeImage, false
}

func fromMIME(m string) (MediaType, bool) {
	m = strings.ToLower(strings.TrimSpace(m))
	switch {
	case strings.HasPrefix(m, "image/"):
		return TypeImage, true
	case strings.HasPrefix(m, "video/"):
		return TypeVideo, true
	case strings.HasPrefix(m, "model/"), m == "application/ply", m == "application/sla", m == "application/x-tgif":
		return TypeModel3D, true
	}
	return "", false
}

// collect gathers string values of the named fields anywhere in the tree,
// visiting map keys in sorted order with shallower fields first.
func collect(md Metadata, names ...string) []string {
	var out []string
	level := []any{map[string]any(md)}
	for len(level) > 0 {
		var next []any
		for _, v := range level {
			switch t := v.(type) {
			case map[string]any:
				for _, k := range sortedKeys(t) {
					for _, n := range names {
						if s, ok := t[k].(string); ok && s != "" && strings.EqualFold(k, n) {
							out = append(out, s)
						}
					}
					next = append(next, t[k])
				}
			case []any:
				next = append(next, t...)
			}
		}
		level = next
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
