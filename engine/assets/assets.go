package assets

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/resources"
)

var ErrAssetNotFound = errors.New("asset not found")

type AssetInfo struct {
	// Path relative to the assets root, slash separated.
	Path         string
	Type         resources.ResourceType
	LastModified time.Time
}

// ChangeHandler is called from the watcher goroutine when an indexed asset is
// created or rewritten on disk.
type ChangeHandler func(info AssetInfo)

// AssetManager indexes the asset directory, loads files through the loader
// registered for their type and reports changes for hot reload.
type AssetManager struct {
	root     string
	assets   map[string]AssetInfo
	loaders  map[resources.ResourceType]Loader
	handlers []ChangeHandler

	mutex sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create asset watcher")
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[resources.ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	root, err := filepath.Abs(assetsDir)
	if err != nil {
		return errors.Wrapf(err, "resolve assets dir %s", assetsDir)
	}
	am.root = root

	// Register loaders
	am.registerLoader(resources.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(resources.ResourceTypeImage, &loaders.ImageLoader{})

	if err := am.addRecursive(root); err != nil {
		return err
	}

	am.wg.Add(1)
	go am.start()

	core.LogInfo("Asset manager watching %s (%d assets indexed).", root, am.Len())
	return nil
}

// OnChange registers fn to be told about created or modified assets.
func (am *AssetManager) OnChange(fn ChangeHandler) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.handlers = append(am.handlers, fn)
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// AssetPath returns the indexed path of a named asset: shaders are looked up
// as shaders/<name>.spv, images as textures/<name>.
func AssetPath(name string, resourceType resources.ResourceType) string {
	switch resourceType {
	case resources.ResourceTypeShader:
		return "shaders/" + name + ".spv"
	case resources.ResourceTypeImage:
		return "textures/" + name
	default:
		return name
	}
}

// LoadAsset loads an indexed asset using the appropriate loader.
func (am *AssetManager) LoadAsset(name string, resourceType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	path := AssetPath(name, resourceType)

	am.mutex.RLock()
	asset, exists := am.assets[path]
	loader, loaderExists := am.loaders[resourceType]
	am.mutex.RUnlock()
	if !exists {
		return nil, errors.Wrapf(ErrAssetNotFound, "%s", path)
	}
	if asset.Type != resourceType || !loaderExists {
		return nil, errors.Newf("no %s loader for asset %s", resourceType, path)
	}

	return loader.Load(filepath.Join(am.root, filepath.FromSlash(path)), params)
}

func (am *AssetManager) UnloadAsset(res *resources.Resource) error {
	am.mutex.RLock()
	loader, ok := am.loaders[res.Type]
	am.mutex.RUnlock()
	if !ok {
		return errors.Newf("no loader for resource type %s", res.Type)
	}
	return loader.Unload(res)
}

// Shutdown stops the watcher goroutine.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	am.wg.Wait()
	return am.fsnotify.Close()
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType resources.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Has(fsnotify.Create) {
			if err := am.watchRecursive(e.Name, false); err != nil {
				core.LogWarn("failed to watch %s: %s", e.Name, err)
			}
		}
		return
	}
	// Handle create or modify events
	if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
		if info, ok := am.handleFileEvent(e.Name); ok {
			am.notify(info)
		}
	}
	// Can't stat a deleted path, so drop it from the index and the watch list
	// without knowing whether it was a directory.
	if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
		am.removeAsset(e.Name)
		_ = am.fsnotify.Remove(e.Name)
	}
}

func (am *AssetManager) notify(info AssetInfo) {
	am.mutex.RLock()
	handlers := make([]ChangeHandler, len(am.handlers))
	copy(handlers, am.handlers)
	am.mutex.RUnlock()

	core.LogDebug("asset changed: %s", info.Path)
	for _, h := range handlers {
		h(info)
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

func (am *AssetManager) relative(path string) (string, bool) {
	rel, err := filepath.Rel(am.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	assetType := determineAssetType(path)
	if assetType == resources.ResourceTypeNone {
		return AssetInfo{}, false
	}
	rel, ok := am.relative(path)
	if !ok {
		return AssetInfo{}, false
	}

	info := AssetInfo{Path: rel, Type: assetType, LastModified: time.Now()}
	am.mutex.Lock()
	am.assets[rel] = info
	am.mutex.Unlock()
	return info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	rel, ok := am.relative(path)
	if !ok {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, rel)
}

func determineAssetType(path string) resources.ResourceType {
	switch filepath.Ext(path) {
	case ".spv":
		return resources.ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return resources.ResourceTypeImage
	default:
		return resources.ResourceTypeNone
	}
}
