package loaders

import "github.com/spaghettifunk/anima-content/engine/resources"

/** @brief Marks a loader slot, or a resource, as not bound to any loader. */
const InvalidID uint32 = ^uint32(0)

/** @brief An "interface" for a resource loader. All registered loaders use this. */
type ResourceLoader struct {
	/** @brief The slot of the loader in the resource system. */
	ID uint32
	/** @brief The loader resource type. */
	ResourceType resources.ResourceType
	/** @brief The loader custom type string, if type is set to custom. */
	CustomType string

	ResourceLoaderInterface
}

// ResourceLoaderInterface decodes the raw bytes of a bundle entry into a
// Resource and releases whatever the decoded Resource holds.
type ResourceLoaderInterface interface {
	Load(name string, data []byte, params interface{}) (*resources.Resource, error)
	Unload(resource *resources.Resource) error
}
