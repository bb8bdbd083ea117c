package syncer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/rdmartin/VaultSync/internal/library"
	"github.com/rdmartin/VaultSync/internal/models"
	"github.com/rdmartin/VaultSync/internal/report"
	"github.com/rdmartin/VaultSync/internal/settings"
	"github.com/rdmartin/VaultSync/internal/upstream"
)

// Inventory keeps upstream informed of which libraries exist locally and
// applies the poster images upstream assigns to them.
type Inventory struct {
	lib      library.Library
	up       Upstream
	settings SettingsStore
	baseURL  string
	keyHash  func() string
}

func NewInventory(lib library.Library, up Upstream, set SettingsStore, baseURL string, keyHash func() string) *Inventory {
	return &Inventory{lib: lib, up: up, settings: set, baseURL: baseURL, keyHash: keyHash}
}

// Push sends the library-name inventory upstream when it changed since the
// last successful push. The fingerprint is persisted only after acceptance.
func (v *Inventory) Push(ctx context.Context, rep *report.Report, apiKey string) {
	folders, err := v.lib.Folders(ctx)
	if err != nil {
		rep.Add(report.LevelWarning, fmt.Sprintf("list libraries: %v", err))
		return
	}
	names := make([]string, 0, len(folders))
	for _, f := range folders {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	sum := md5.Sum([]byte(strings.Join(names, "|")))
	hash := hex.EncodeToString(sum[:])
	prev, err := v.settings.Get(settings.KeyLastLibraryHash)
	if err == nil && prev == hash {
		return
	}

	if err := v.up.AddLibraries(ctx, apiKey, names); err != nil {
		rep.Add(report.LevelWarning, fmt.Sprintf("push library inventory: %v", err))
		return
	}
	if err := v.settings.Set(settings.KeyLastLibraryHash, hash); err != nil {
		rep.Add(report.LevelWarning, fmt.Sprintf("persist library fingerprint: %v", err))
	}
	rep.Add(report.LevelInfo, fmt.Sprintf("pushed %d library names upstream", len(names)))
}

// ApplyImages points each named library at its assigned upstream poster and
// asks the server to refresh so the bytes are fetched.
func (v *Inventory) ApplyImages(ctx context.Context, rep *report.Report, ls *models.LibrarySync) {
	if ls == nil || len(ls.Images) == 0 {
		return
	}
	folders, err := v.lib.Folders(ctx)
	if err != nil {
		rep.Add(report.LevelWarning, fmt.Sprintf("list libraries for image sync: %v", err))
		return
	}

	byName := make(map[string]library.Folder, len(folders))
	for _, f := range folders {
		byName[strings.ToLower(f.Name)] = f
	}
	for _, img := range ls.Images {
		folder, ok := byName[strings.ToLower(img.Name)]
		if !ok || img.PosterRef == "" {
			continue
		}
		url := upstream.LibraryImageURL(v.baseURL, img.PosterRef, v.keyHash())
		if err := v.lib.SetPrimaryImageURL(ctx, folder.ID, url); err != nil {
			rep.Add(report.LevelWarning, fmt.Sprintf("set image for library %q: %v", folder.Name, err))
			continue
		}
		if err := v.lib.RefreshMetadata(ctx, folder.ID, true); err != nil {
			rep.Add(report.LevelWarning, fmt.Sprintf("refresh library %q: %v", folder.Name, err))
			continue
		}
		rep.Add(report.LevelInfo, fmt.Sprintf("updated poster for library %q", folder.Name))
	}
}
