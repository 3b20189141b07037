package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/store"
)

// Store is the configuration of the session store backend.
type Store struct {
	Type   string `yaml:"type"`
	Config StoreFactory
}

func (c *Store) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig rawConfig

	err := value.Decode(&rawConfig)
	if err != nil {
		return err
	}

	var config StoreFactory

	switch rawConfig.Type {
	case "memory":
		config = memoryStore{}

	case "file":
		var factory fileStore

		err := decode(rawConfig.Config, &factory)
		if err != nil {
			return err
		}

		config = factory

	case "redis":
		var factory redisStore

		err := decode(rawConfig.Config, &factory)
		if err != nil {
			return err
		}

		config = factory

	default:
		return fmt.Errorf("unknown store type: %s", rawConfig.Type)
	}

	c.Type = rawConfig.Type
	c.Config = config

	return nil
}

// StoreFactory creates a common.SessionStore.
type StoreFactory interface {
	Validate() error
	CreateStore() (common.SessionStore, error)
}

type memoryStore struct{}

func (memoryStore) Validate() error { return nil }

func (memoryStore) CreateStore() (common.SessionStore, error) {
	return store.NewMemory(), nil
}

type fileStore struct {
	Dir string `mapstructure:"dir"`
}

func (c fileStore) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("file store: dir is required")
	}
	return nil
}

func (c fileStore) CreateStore() (common.SessionStore, error) {
	return store.NewFile(c.Dir)
}

type redisStore struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

func (c redisStore) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis store: addr is required")
	}
	return nil
}

func (c redisStore) CreateStore() (common.SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	return store.NewRedis(client, c.Prefix), nil
}

// NewFileStore is the factory for a file store in dir.
func NewFileStore(dir string) StoreFactory {
	return fileStore{Dir: dir}
}

func decode(input map[string]interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           output,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
