package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/emergency_response_client/internal/models"
	"github.com/shenikar/emergency_response_client/internal/service"
)

// IncidentRepository - кэш снимков инцидента в Redis и журнал
// переходов статуса в Postgres. db == nil отключает журнал.
type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration) service.IncidentRepository {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

func cacheKey(id string) string {
	return fmt.Sprintf("incident:%s", id)
}

// GetIncidentFromCache пытается получить инцидент из Redis; промах - nil, nil
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id string) (*models.Incident, error) {
	val, err := r.redisClient.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// SetIncidentCache сохраняет инцидент в Redis
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	if err := r.redisClient.Set(ctx, cacheKey(incident.ID), val, r.cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инцидент из Redis кэша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id string) error {
	if err := r.redisClient.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}

// SaveTransition записывает примененный переход в журнал
func (r *IncidentRepository) SaveTransition(ctx context.Context, tr *models.StatusTransition) error {
	if r.db == nil {
		return nil
	}
	query := `
		INSERT INTO status_transitions (incident_id, from_status, to_status, description, origin, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id;
	`
	err := r.db.QueryRow(ctx, query,
		tr.IncidentID,
		string(tr.From),
		string(tr.To),
		tr.Description,
		string(tr.Origin),
		tr.At,
	).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("failed to save status transition: %w", err)
	}
	return nil
}

// ListTransitions возвращает журнал инцидента в порядке применения
func (r *IncidentRepository) ListTransitions(ctx context.Context, incidentID string) ([]*models.StatusTransition, error) {
	if r.db == nil {
		return []*models.StatusTransition{}, nil
	}
	query := `
		SELECT id, incident_id, from_status, to_status, description, origin, applied_at
		FROM status_transitions
		WHERE incident_id = $1
		ORDER BY applied_at, id;
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*models.StatusTransition
	for rows.Next() {
		var (
			tr             models.StatusTransition
			from, to, orig string
		)
		if err := rows.Scan(&tr.ID, &tr.IncidentID, &from, &to, &tr.Description, &orig, &tr.At); err != nil {
			return nil, fmt.Errorf("failed to scan status transition row: %w", err)
		}
		tr.From = models.Status(from)
		tr.To = models.Status(to)
		tr.Origin = models.Origin(orig)
		transitions = append(transitions, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status transition rows: %w", err)
	}
	if transitions == nil {
		transitions = []*models.StatusTransition{}
	}
	return transitions, nil
}
