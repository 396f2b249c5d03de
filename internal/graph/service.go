package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cognify/backend/internal/llm"
	"cognify/backend/internal/models"
	"cognify/backend/pkg/cache"
	"cognify/backend/pkg/logger"
	"cognify/backend/shared/redis"
)

// Service derives topic tags and the knowledge graph from conversation
// histories via the model gateway. Results are cached per user: a process
// cache in front of redis, both best-effort.
type Service struct {
	gateway *llm.Gateway
	l1      *cache.Cache
	redis   *redis.RedisClient
	log     *logger.Logger
	ttl     time.Duration
}

// NewService wires the graph service. redisClient may be nil to run with
// the process cache alone.
func NewService(gateway *llm.Gateway, l1 *cache.Cache, redisClient *redis.RedisClient, log *logger.Logger, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	return &Service{gateway: gateway, l1: l1, redis: redisClient, log: log, ttl: ttl}
}

// Tags extracts deduplicated topic strings from a conversation history.
func (s *Service) Tags(ctx context.Context, history []models.HistoryEntry) ([]string, error) {
	raw, err := s.gateway.Complete(ctx, tagsSystemPrompt, history, s.gateway.Defaults())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Topics []string `json:"topics"`
	}
	if err := decodeModelJSON(raw, &parsed); err != nil {
		return nil, fmt.Errorf("topic extraction returned malformed JSON: %w", err)
	}

	seen := make(map[string]struct{}, len(parsed.Topics))
	topics := make([]string, 0, len(parsed.Topics))
	for _, t := range parsed.Topics {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	return topics, nil
}

// Knowledge builds the undirected adjacency over the given topics. The
// model's output is symmetrized and stripped of self-loops on receipt, so
// a sloppy model cannot break the graph invariants.
func (s *Service) Knowledge(ctx context.Context, topics []string) (*models.KnowledgeGraph, error) {
	if len(topics) == 0 {
		return &models.KnowledgeGraph{Topics: []string{}, Adjacency: map[string][]string{}}, nil
	}

	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return nil, err
	}
	prompt := []models.HistoryEntry{{
		Role:    models.RoleUser,
		Content: fmt.Sprintf("Here is the list of topics:\n%s\n\nBuild the adjacency JSON based on these topics.", topicsJSON),
	}}

	raw, err := s.gateway.Complete(ctx, adjacencySystemPrompt(string(topicsJSON)), prompt, s.gateway.Defaults())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Adjacency map[string][]string `json:"adjacency"`
	}
	if err := decodeModelJSON(raw, &parsed); err != nil {
		return nil, fmt.Errorf("adjacency extraction returned malformed JSON: %w", err)
	}

	graph := &models.KnowledgeGraph{Topics: topics, Adjacency: parsed.Adjacency}
	graph.Symmetrize()
	return graph, nil
}

// Summarize produces a ten-to-twenty word summary of a conversation.
func (s *Service) Summarize(ctx context.Context, history []models.HistoryEntry) (string, error) {
	return s.gateway.Summarize(ctx, history, s.gateway.Defaults())
}

// ForUser derives the knowledge graph across all of a user's session
// histories, serving from cache when fresh.
func (s *Service) ForUser(ctx context.Context, userID string, histories [][]models.HistoryEntry) (*models.KnowledgeGraph, error) {
	key := "graph:" + userID
	if cached, ok := s.l1.Get(key); ok {
		if g, ok := cached.(*models.KnowledgeGraph); ok {
			return g, nil
		}
	}
	if g := s.fromRedis(key); g != nil {
		s.l1.SetWithExpiration(key, g, s.ttl)
		return g, nil
	}

	topicSet := make(map[string]struct{})
	for _, history := range histories {
		if len(history) == 0 {
			continue
		}
		tags, err := s.Tags(ctx, history)
		if err != nil {
			return nil, err
		}
		for _, t := range tags {
			topicSet[t] = struct{}{}
		}
	}
	topics := make([]string, 0, len(topicSet))
	for t := range topicSet {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	graph, err := s.Knowledge(ctx, topics)
	if err != nil {
		return nil, err
	}

	s.l1.SetWithExpiration(key, graph, s.ttl)
	s.toRedis(key, graph)
	return graph, nil
}

// Invalidate drops cached graph state for a user, e.g. after new turns.
func (s *Service) Invalidate(userID string) {
	key := "graph:" + userID
	s.l1.Delete(key)
	if s.redis != nil {
		if err := s.redis.Del(key); err != nil {
			s.log.Warn("failed to drop redis graph cache", "key", key, "error", err.Error())
		}
	}
}

func (s *Service) fromRedis(key string) *models.KnowledgeGraph {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(key)
	if err != nil || raw == "" {
		return nil
	}
	var g models.KnowledgeGraph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		s.log.Warn("discarding unreadable redis graph cache", "key", key, "error", err.Error())
		return nil
	}
	return &g
}

func (s *Service) toRedis(key string, g *models.KnowledgeGraph) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return
	}
	if err := s.redis.Set(key, string(raw), s.ttl); err != nil {
		s.log.Warn("failed to write redis graph cache", "key", key, "error", err.Error())
	}
}
