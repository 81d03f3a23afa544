package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/synheart/synheart-seizure/internal/models"
)

// StaticDirectory serves a fixed contact list, typically from config.
type StaticDirectory []models.EmergencyContact

func (d StaticDirectory) Contacts(context.Context) ([]models.EmergencyContact, error) {
	out := make([]models.EmergencyContact, len(d))
	copy(out, d)
	return out, nil
}

// RedisDirectory reads the contact list from a JSON array stored under
// one key, so the companion app and the monitor share the same circle.
// A missing key is an empty directory.
type RedisDirectory struct {
	client *redis.Client
	key    string
}

func NewRedisDirectory(client *redis.Client, key string) *RedisDirectory {
	return &RedisDirectory{client: client, key: key}
}

func (d *RedisDirectory) Contacts(ctx context.Context) ([]models.EmergencyContact, error) {
	val, err := d.client.Get(ctx, d.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", d.key, err)
	}
	var contacts []models.EmergencyContact
	if err := json.Unmarshal([]byte(val), &contacts); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	return contacts, nil
}

// Store replaces the stored contact list.
func (d *RedisDirectory) Store(ctx context.Context, contacts []models.EmergencyContact) error {
	data, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}
	return d.client.Set(ctx, d.key, data, 0).Err()
}
