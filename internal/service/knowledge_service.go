package service

import (
	"context"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	"github.com/CerberoGS/CATAI-sub000/internal/repo"
)

type KnowledgeService struct {
	knowledge *repo.KnowledgeRepo
}

func NewKnowledgeService(knowledge *repo.KnowledgeRepo) *KnowledgeService {
	return &KnowledgeService{knowledge: knowledge}
}

func (s *KnowledgeService) List(ctx context.Context, userID string, limit, offset uint) ([]model.KnowledgeEntry, error) {
	return s.knowledge.List(ctx, userID, limit, offset)
}

func (s *KnowledgeService) Get(ctx context.Context, userID, id string) (*model.KnowledgeEntry, error) {
	return s.knowledge.GetByID(ctx, userID, id)
}

func (s *KnowledgeService) Delete(ctx context.Context, userID, id string) error {
	return s.knowledge.Delete(ctx, userID, id)
}
