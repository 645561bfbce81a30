package bom

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts BOM lookups for the service.
type RepositoryPort interface {
	GetBOM(ctx context.Context, no string) (BOM, error)
	ActiveBOMExists(ctx context.Context, itemCode, bomNo string) (bool, error)
}

// Service explodes bills of materials into raw material requirements.
type Service struct {
	repo     RepositoryPort
	cache    *redis.Client
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewService builds Service. The redis client is optional; without it every
// explosion hits the repository.
func NewService(repo RepositoryPort, cache *redis.Client) *Service {
	return &Service{repo: repo, cache: cache, cacheTTL: 10 * time.Minute}
}

// Explode returns the raw material requirements for producing qty units of
// the BOM's finished item, scaled linearly. With multiLevel set,
// sub-assembly rows are expanded recursively into their own raw materials.
func (s *Service) Explode(ctx context.Context, bomNo string, qty float64, multiLevel bool) (map[string]ExplodedItem, error) {
	if bomNo == "" {
		return nil, ErrBOMNotFound
	}
	out := make(map[string]ExplodedItem)
	if err := s.explodeInto(ctx, out, bomNo, qty, multiLevel, map[string]bool{}); err != nil {
		return nil, err
	}
	return out, nil
}

// IsActiveBOMFor reports whether bomNo is an active, submitted BOM producing
// the given item.
func (s *Service) IsActiveBOMFor(ctx context.Context, itemCode, bomNo string) (bool, error) {
	return s.repo.ActiveBOMExists(ctx, itemCode, bomNo)
}

func (s *Service) explodeInto(ctx context.Context, out map[string]ExplodedItem, bomNo string, qty float64, multiLevel bool, visiting map[string]bool) error {
	if visiting[bomNo] {
		return ErrBOMCycle
	}
	visiting[bomNo] = true
	defer delete(visiting, bomNo)

	doc, err := s.getCached(ctx, bomNo)
	if err != nil {
		return err
	}
	if doc.Quantity <= 0 {
		return ErrBOMQuantity
	}
	scale := qty / doc.Quantity
	for _, item := range doc.Items {
		required := item.Qty * scale
		if multiLevel && item.SubBOMNo != "" {
			if err := s.explodeInto(ctx, out, item.SubBOMNo, required, true, visiting); err != nil {
				return err
			}
			continue
		}
		acc := out[item.ItemCode]
		acc.ItemCode = item.ItemCode
		acc.Qty += required
		acc.UOM = item.UOM
		acc.DefaultWarehouse = item.DefaultWarehouse
		out[item.ItemCode] = acc
	}
	return nil
}

func (s *Service) getCached(ctx context.Context, bomNo string) (BOM, error) {
	if s.cache == nil {
		return s.repo.GetBOM(ctx, bomNo)
	}
	key := fmt.Sprintf("bom:doc:%s", bomNo)
	if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
		var doc BOM
		if jsonErr := json.Unmarshal(raw, &doc); jsonErr == nil {
			return doc, nil
		}
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		doc, err := s.repo.GetBOM(ctx, bomNo)
		if err != nil {
			return BOM{}, err
		}
		if raw, jsonErr := json.Marshal(doc); jsonErr == nil {
			_ = s.cache.Set(ctx, key, raw, s.cacheTTL).Err()
		}
		return doc, nil
	})
	if err != nil {
		return BOM{}, err
	}
	return v.(BOM), nil
}
