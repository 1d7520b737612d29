package dockerunner

import (
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// RunDocker starts a throwaway container. The returned cleanup removes it.
func RunDocker(options dockertest.RunOptions, hcOpts func(*docker.HostConfig)) (func() error, *dockertest.Resource, *dockertest.Pool, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, nil, nil, err
	}

	if err := pool.Client.Ping(); err != nil {
		return nil, nil, nil, err
	}

	fnConfig := func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.NeverRestart()
		hcOpts(config)
	}

	resource, err := pool.RunWithOptions(&options, fnConfig)
	if err != nil {
		return nil, nil, nil, err
	}

	return resource.Close, resource, pool, nil
}
