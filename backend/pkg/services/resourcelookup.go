package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lamassuiot/rpki-core/core/pkg/errs"
	chelpers "github.com/lamassuiot/rpki-core/core/pkg/helpers"
	"github.com/lamassuiot/rpki-core/core/pkg/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// resourceSnapshot is the registry export read by YAMLResourceLookup:
//
//	resources:
//	  ORG-1:
//	    - AS64496
//	    - 10.0.0.0/8
type resourceSnapshot struct {
	Resources map[string][]string `yaml:"resources"`
}

// YAMLResourceLookup answers lookups from a registry snapshot file. The file
// is read again whenever it changes.
type YAMLResourceLookup struct {
	logger *logrus.Entry
	path   string

	mu       sync.RWMutex
	modTime  time.Time
	snapshot map[string]models.ResourceSet
}

func NewYAMLResourceLookup(logger *logrus.Entry, path string) *YAMLResourceLookup {
	return &YAMLResourceLookup{logger: logger, path: path}
}

func (l *YAMLResourceLookup) LookupPotentialResources(ctx context.Context, caName string) (models.ResourceSet, error) {
	lFunc := chelpers.ConfigureLogger(ctx, l.logger)

	if err := l.refresh(); err != nil {
		lFunc.Warnf("resource snapshot %s unavailable: %s", l.path, err)
		return models.ResourceSet{}, fmt.Errorf("%w: %s", errs.ErrResourceInformationNotAvailable, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	resources, ok := l.snapshot[models.NormalizeCAName(caName)]
	if !ok {
		lFunc.Debugf("resource snapshot has no entry for %s", caName)
		return models.ResourceSet{}, fmt.Errorf("%w: %s", errs.ErrResourceInformationNotAvailable, caName)
	}
	return resources, nil
}

func (l *YAMLResourceLookup) refresh() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return err
	}

	l.mu.RLock()
	fresh := l.snapshot != nil && info.ModTime().Equal(l.modTime)
	l.mu.RUnlock()
	if fresh {
		return nil
	}

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}

	var doc resourceSnapshot
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("could not decode resource snapshot: %w", err)
	}

	snapshot := make(map[string]models.ResourceSet, len(doc.Resources))
	for name, entries := range doc.Resources {
		resources, err := models.ParseResourceSet(strings.Join(entries, ","))
		if err != nil {
			return fmt.Errorf("invalid resources for %s: %w", name, err)
		}
		snapshot[models.NormalizeCAName(name)] = resources
	}

	l.mu.Lock()
	l.snapshot = snapshot
	l.modTime = info.ModTime()
	l.mu.Unlock()

	l.logger.Infof("loaded resource snapshot %s with %d entries", l.path, len(snapshot))
	return nil
}

// InMemoryResourceLookup is a lookup backed by a map, set up by hand.
type InMemoryResourceLookup struct {
	mu        sync.RWMutex
	resources map[string]models.ResourceSet
}

func NewInMemoryResourceLookup() *InMemoryResourceLookup {
	return &InMemoryResourceLookup{resources: map[string]models.ResourceSet{}}
}

func (l *InMemoryResourceLookup) Set(caName string, resources models.ResourceSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resources[models.NormalizeCAName(caName)] = resources
}

func (l *InMemoryResourceLookup) Remove(caName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.resources, models.NormalizeCAName(caName))
}

func (l *InMemoryResourceLookup) LookupPotentialResources(ctx context.Context, caName string) (models.ResourceSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	resources, ok := l.resources[models.NormalizeCAName(caName)]
	if !ok {
		return models.ResourceSet{}, fmt.Errorf("%w: %s", errs.ErrResourceInformationNotAvailable, caName)
	}
	return resources, nil
}
