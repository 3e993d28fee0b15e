// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
)

// MediaClass is the coarse family of a file.
type MediaClass string

const (
	ClassVideo MediaClass = "video"
	ClassAudio MediaClass = "audio"
	ClassImage MediaClass = "image"
	ClassOther MediaClass = "other"
)

var classByExt = map[string]MediaClass{
	".mp4": ClassVideo, ".m4v": ClassVideo, ".mkv": ClassVideo, ".mov": ClassVideo,
	".avi": ClassVideo, ".webm": ClassVideo, ".ts": ClassVideo, ".wmv": ClassVideo,
	".mp3": ClassAudio, ".flac": ClassAudio, ".m4a": ClassAudio, ".ogg": ClassAudio,
	".opus": ClassAudio, ".wav": ClassAudio, ".aac": ClassAudio, ".alac": ClassAudio,
	".jpg": ClassImage, ".jpeg": ClassImage, ".png": ClassImage, ".gif": ClassImage,
	".bmp": ClassImage, ".tif": ClassImage, ".tiff": ClassImage,
}

// Classify returns the class of path by extension.
func Classify(path string) MediaClass {
	if c, ok := classByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return c
	}
	return ClassOther
}

// Tags are the embedded audio tags, when present.
type Tags struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"albumArtist,omitempty"`
	Composer    string `json:"composer,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	Track       int    `json:"track,omitempty"`
	TrackTotal  int    `json:"trackTotal,omitempty"`
	Disc        int    `json:"disc,omitempty"`
	DiscTotal   int    `json:"discTotal,omitempty"`
	Format      string `json:"format,omitempty"`
	HasArtwork  bool   `json:"hasArtwork,omitempty"`
}

// Metadata describes one media file.
type Metadata struct {
	Path     string     `json:"path"`
	Name     string     `json:"name"`
	Class    MediaClass `json:"class"`
	MIMEType string     `json:"mimeType,omitempty"`
	Size     int64      `json:"size"`
	ModTime  time.Time  `json:"modTime"`
	Tags     *Tags      `json:"tags,omitempty"`
	Virtual  bool       `json:"virtual,omitempty"`
}

// ExtractMetadata stats path and reads embedded tags for audio files. A
// file without readable tags still yields its stat information.
func ExtractMetadata(path string) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	md := &Metadata{
		Path:     path,
		Name:     info.Name(),
		Class:    Classify(path),
		MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:     info.Size(),
		ModTime:  info.ModTime().UTC().Truncate(time.Second),
	}
	if md.Class == ClassAudio {
		if tags, err := readTags(path); err == nil {
			md.Tags = tags
		}
	}
	return md, nil
}

func readTags(path string) (*Tags, error) {
	f, err := os.Open(path) // #nosec G304 -- path is authorized by the caller
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, err
	}
	t := &Tags{
		Title:       m.Title(),
		Artist:      m.Artist(),
		Album:       m.Album(),
		AlbumArtist: m.AlbumArtist(),
		Composer:    m.Composer(),
		Genre:       m.Genre(),
		Year:        m.Year(),
		Format:      string(m.Format()),
		HasArtwork:  m.Picture() != nil,
	}
	t.Track, t.TrackTotal = m.Track()
	t.Disc, t.DiscTotal = m.Disc()
	return t, nil
}
