package systems

import (
	"fmt"
	"sync"

	assetloaders "github.com/spaghettifunk/anima-content/engine/assets/loaders"
	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/resources"
	"github.com/spaghettifunk/anima-content/engine/resources/loaders"
)

/** @brief The configuration for the resource system */
type ResourceSystemConfig struct {
	/** @brief The maximum number of loaders that can be registered with this system. */
	MaxLoaderCount uint32
}

// ResourceSystem turns the raw bytes of a bundle entry into a Resource by
// dispatching to the registered loader for the requested type. Decoding runs on
// job workers, so the registry is guarded.
type ResourceSystem struct {
	config            ResourceSystemConfig
	mu                sync.RWMutex
	registeredLoaders []loaders.ResourceLoader
}

func NewResourceSystem(config ResourceSystemConfig) (*ResourceSystem, error) {
	if config.MaxLoaderCount == 0 {
		err := fmt.Errorf("failed to run NewResourceSystem because config.MaxLoaderCount==0")
		core.LogError("%s", err.Error())
		return nil, err
	}

	rs := &ResourceSystem{
		config:            config,
		registeredLoaders: make([]loaders.ResourceLoader, config.MaxLoaderCount),
	}

	// Invalidate all loaders
	for i := uint32(0); i < config.MaxLoaderCount; i++ {
		rs.registeredLoaders[i].ID = loaders.InvalidID
	}

	// Auto-register known loader types here.
	builtins := []loaders.ResourceLoader{
		{ResourceType: resources.ResourceTypeText, ResourceLoaderInterface: &assetloaders.TextLoader{}},
		{ResourceType: resources.ResourceTypeBinary, ResourceLoaderInterface: &assetloaders.BinaryLoader{}},
		{ResourceType: resources.ResourceTypeImage, ResourceLoaderInterface: &assetloaders.ImageLoader{}},
		{ResourceType: resources.ResourceTypeShader, ResourceLoaderInterface: &assetloaders.ShaderLoader{}},
		{ResourceType: resources.ResourceTypeBitmapFont, ResourceLoaderInterface: &assetloaders.BitmapFontLoader{}},
		{ResourceType: resources.ResourceTypeSystemFont, ResourceLoaderInterface: &assetloaders.SystemFontLoader{}},
	}
	for _, l := range builtins {
		if !rs.RegisterLoader(l) {
			return nil, fmt.Errorf("failed to register the %s loader", l.ResourceType)
		}
	}

	core.LogInfo("Resource system initialized with %d loader slots.", config.MaxLoaderCount)

	return rs, nil
}

func (rs *ResourceSystem) Shutdown() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i := range rs.registeredLoaders {
		rs.registeredLoaders[i] = loaders.ResourceLoader{ID: loaders.InvalidID}
	}
	return nil
}

// RegisterLoader adds a loader. A second loader for the same built-in type, or
// the same custom type string, is rejected.
func (rs *ResourceSystem) RegisterLoader(loader loaders.ResourceLoader) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	count := rs.config.MaxLoaderCount
	// Ensure no loaders for the given type already exist
	for i := uint32(0); i < count; i++ {
		l := rs.registeredLoaders[i]
		if l.ID == loaders.InvalidID {
			continue
		}
		if loader.ResourceType != resources.ResourceTypeCustom && l.ResourceType == loader.ResourceType {
			core.LogError("RegisterLoader - Loader of type %s already exists and will not be registered.", loader.ResourceType)
			return false
		} else if len(loader.CustomType) > 0 && l.CustomType == loader.CustomType {
			core.LogError("RegisterLoader - Loader of custom type %s already exists and will not be registered.", loader.CustomType)
			return false
		}
	}
	for i := uint32(0); i < count; i++ {
		if rs.registeredLoaders[i].ID == loaders.InvalidID {
			rs.registeredLoaders[i] = loader
			rs.registeredLoaders[i].ID = i
			core.LogDebug("Loader registered for type %s.", loader.ResourceType)
			return true
		}
	}

	core.LogError("RegisterLoader - no free loader slot left")
	return false
}

// Decode runs the loader matching resourceType over data. ResourceTypeNone
// picks the loader from the file extension of name.
func (rs *ResourceSystem) Decode(name string, resourceType resources.ResourceType, data []byte, params interface{}) (*resources.Resource, error) {
	if resourceType == resources.ResourceTypeNone {
		resourceType = resources.TypeFromExtension(name)
	}
	if resourceType == resources.ResourceTypeCustom {
		return nil, fmt.Errorf("Decode - use DecodeCustom for custom resource '%s'", name)
	}

	l, ok := rs.find(func(l loaders.ResourceLoader) bool { return l.ResourceType == resourceType })
	if !ok {
		err := fmt.Errorf("Decode - No loader for type %s was found: %w", resourceType, core.ErrNotFound)
		core.LogError("%s", err.Error())
		return nil, err
	}
	return rs.load(l, name, data, params)
}

func (rs *ResourceSystem) DecodeCustom(name, customType string, data []byte, params interface{}) (*resources.Resource, error) {
	l, ok := rs.find(func(l loaders.ResourceLoader) bool {
		return l.ResourceType == resources.ResourceTypeCustom && len(customType) > 0 && l.CustomType == customType
	})
	if !ok {
		err := fmt.Errorf("DecodeCustom - No loader for type %s was found: %w", customType, core.ErrNotFound)
		core.LogError("%s", err.Error())
		return nil, err
	}
	return rs.load(l, name, data, params)
}

func (rs *ResourceSystem) Unload(resource *resources.Resource) error {
	if resource == nil || resource.LoaderID == loaders.InvalidID {
		return nil
	}
	rs.mu.RLock()
	if resource.LoaderID >= uint32(len(rs.registeredLoaders)) {
		rs.mu.RUnlock()
		return nil
	}
	l := rs.registeredLoaders[resource.LoaderID]
	rs.mu.RUnlock()

	if l.ID == loaders.InvalidID {
		return nil
	}
	if err := l.Unload(resource); err != nil {
		return err
	}
	resource.LoaderID = loaders.InvalidID
	return nil
}

func (rs *ResourceSystem) find(match func(l loaders.ResourceLoader) bool) (loaders.ResourceLoader, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, l := range rs.registeredLoaders {
		if l.ID != loaders.InvalidID && match(l) {
			return l, true
		}
	}
	return loaders.ResourceLoader{}, false
}

func (rs *ResourceSystem) load(l loaders.ResourceLoader, name string, data []byte, params interface{}) (*resources.Resource, error) {
	res, err := l.Load(name, data, params)
	if err != nil {
		return nil, err
	}
	if res.Type == resources.ResourceTypeNone {
		res.Type = l.ResourceType
	}
	res.LoaderID = l.ID
	return res, nil
}
