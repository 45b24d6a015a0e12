package systems

type SystemManagerConfig struct {
	/** @brief The number of job workers. */
	Workers int
	/** @brief The size of each job priority queue. */
	QueueSize int
	/** @brief The maximum number of payload loaders. */
	MaxLoaderCount uint32
	/** @brief The maximum number of build scenes. */
	MaxSceneCount uint32
	/** @brief Hold async scene loads at 0.9 until explicitly activated. */
	DeferSceneActivation bool
}

type SystemManager struct {
	jobSystem      *JobSystem
	resourceSystem *ResourceSystem
	sceneSystem    *SceneSystem
}

func NewSystemManager(config SystemManagerConfig) (*SystemManager, error) {
	js, err := NewJobSystem(config.Workers, config.QueueSize)
	if err != nil {
		return nil, err
	}
	rs, err := NewResourceSystem(ResourceSystemConfig{
		MaxLoaderCount: config.MaxLoaderCount,
	})
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	ss, err := NewSceneSystem(SceneSystemConfig{
		MaxSceneCount:   config.MaxSceneCount,
		DeferActivation: config.DeferSceneActivation,
	}, js)
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		jobSystem:      js,
		resourceSystem: rs,
		sceneSystem:    ss,
	}, nil
}

func (sm *SystemManager) JobSystem() *JobSystem {
	return sm.jobSystem
}

func (sm *SystemManager) ResourceSystem() *ResourceSystem {
	return sm.resourceSystem
}

func (sm *SystemManager) SceneSystem() *SceneSystem {
	return sm.sceneSystem
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.sceneSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.resourceSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.jobSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
