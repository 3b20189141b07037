package fitness

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
	"github.com/guarzo/gymapi/modules/api"
)

// FitnessService is a higher-level interface over the fitness endpoints.
type FitnessService interface {
	Groups(ctx context.Context) ([]string, error)
	ExercisesByGroup(ctx context.Context, group string) ([]model.Exercise, error)
	Exercise(ctx context.Context, id int64) (*model.Exercise, error)
	RegisterExercise(ctx context.Context, id int64) error
	History(ctx context.Context) ([]model.HistoryByDay, error)
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) error

	AvatarURL(name string) string
	ThumbURL(name string) string
	DemoURL(name string) string
}

type fitnessService struct {
	client *api.Client
	cache  common.CacheRepository
}

// NewFitnessService constructs a FitnessService. cache may be nil.
func NewFitnessService(client *api.Client, cache common.CacheRepository) FitnessService {
	return &fitnessService{
		client: client,
		cache:  cache,
	}
}

func (s *fitnessService) Groups(ctx context.Context) ([]string, error) {
	var groups []string
	if err := s.cachedGet(ctx, "/groups", &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *fitnessService) ExercisesByGroup(ctx context.Context, group string) ([]model.Exercise, error) {
	var exercises []model.Exercise
	endpoint := "/exercises/bygroup/" + url.PathEscape(group)
	if err := s.cachedGet(ctx, endpoint, &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

func (s *fitnessService) Exercise(ctx context.Context, id int64) (*model.Exercise, error) {
	var exercise model.Exercise
	endpoint := fmt.Sprintf("/exercises/%d", id)
	if err := s.client.JSON(ctx, http.MethodGet, endpoint, nil, &exercise); err != nil {
		return nil, err
	}
	return &exercise, nil
}

// RegisterExercise marks the exercise as done now.
func (s *fitnessService) RegisterExercise(ctx context.Context, id int64) error {
	return s.client.JSON(ctx, http.MethodPost, "/history", model.HistoryRequest{ExerciseID: id}, nil)
}

func (s *fitnessService) History(ctx context.Context) ([]model.HistoryByDay, error) {
	var days []model.HistoryByDay
	if err := s.client.JSON(ctx, http.MethodGet, "/history", nil, &days); err != nil {
		return nil, err
	}
	return days, nil
}

func (s *fitnessService) UpdateProfile(ctx context.Context, update model.ProfileUpdate) error {
	return s.client.JSON(ctx, http.MethodPut, "/users", update, nil)
}

func (s *fitnessService) AvatarURL(name string) string {
	return s.client.URL("/avatar/" + url.PathEscape(name))
}

func (s *fitnessService) ThumbURL(name string) string {
	return s.client.URL("/exercise/thumb/" + url.PathEscape(name))
}

func (s *fitnessService) DemoURL(name string) string {
	return s.client.URL("/exercise/demo/" + url.PathEscape(name))
}

// cachedGet serves catalog reads from the cache when one is configured.
func (s *fitnessService) cachedGet(ctx context.Context, endpoint string, out interface{}) error {
	cacheKey := "fitness:" + endpoint
	if s.cache != nil {
		if cached, found := s.cache.Get(cacheKey); found {
			return json.Unmarshal(cached, out)
		}
	}

	resp, err := s.client.Get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, resp.Body, common.DefaultExpiration)
	}
	return nil
}
