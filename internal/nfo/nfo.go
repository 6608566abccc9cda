// SPDX-License-Identifier: MIT

// Package nfo writes episode sidecar files in the format media servers
// (Kodi, Jellyfin, Emby) ingest to populate titles and episode numbers
// without scanning the media itself.
package nfo

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
)

const xmlHeader = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>` + "\n"

// Record is the episode metadata written next to a downloaded VOD.
type Record struct {
	Title     string
	Plot      string
	SourceID  string
	StartedAt time.Time
	Season    int
	Episode   int
	// Runtime is the broadcast length; zero omits the element.
	Runtime time.Duration
	// DateAdded is when the item entered the library; zero omits the element.
	DateAdded time.Time
}

type episodeDetails struct {
	XMLName   xml.Name  `xml:"episodedetails"`
	Title     string    `xml:"title"`
	Plot      string    `xml:"plot"`
	Aired     string    `xml:"aired"`
	Season    int       `xml:"season"`
	Episode   int       `xml:"episode"`
	UniqueID  *uniqueID `xml:"uniqueid,omitempty"`
	DateAdded string    `xml:"dateadded,omitempty"`
	Runtime   int       `xml:"runtime,omitempty"`
}

type uniqueID struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

// Write renders the record as an <episodedetails> document and atomically
// replaces path. Existing files are overwritten, which keeps manual re-runs
// safe.
func Write(path string, rec Record) error {
	details := episodeDetails{
		Title:   rec.Title,
		Plot:    rec.Plot,
		Aired:   rec.StartedAt.UTC().Format("2006-01-02"),
		Season:  rec.Season,
		Episode: rec.Episode,
	}
	if rec.SourceID != "" {
		details.UniqueID = &uniqueID{Type: "twitch", Default: true, Value: rec.SourceID}
	}
	if !rec.DateAdded.IsZero() {
		details.DateAdded = rec.DateAdded.UTC().Format("2006-01-02 15:04:05")
	}
	if rec.Runtime > 0 {
		details.Runtime = int(rec.Runtime / time.Minute)
	}

	out, err := xml.MarshalIndent(details, "", "  ")
	if err != nil {
		return fmt.Errorf("encode nfo: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending nfo file: %w", err)
	}
	defer func() {
		_ = pendingFile.Cleanup()
	}()

	if _, err := pendingFile.Write(append([]byte(xmlHeader), append(out, '\n')...)); err != nil {
		return fmt.Errorf("write nfo data: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace nfo file: %w", err)
	}
	return nil
}

// PeekSourceID reads the uniqueid element from an existing sidecar file.
// A missing file yields an empty id without error; a present but
// unparseable file yields an error so callers can treat it as unknown.
func PeekSourceID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read nfo %s: %w", path, err)
	}

	var details episodeDetails
	if err := xml.Unmarshal(data, &details); err != nil {
		return "", fmt.Errorf("parse nfo %s: %w", path, err)
	}
	if details.UniqueID == nil {
		return "", nil
	}
	return details.UniqueID.Value, nil
}
