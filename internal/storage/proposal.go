package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

func (r *PostgresRepository) SaveProposal(ctx context.Context, p *domain.ImprovementProposal) (string, error) {
	if p.ProposalID == "" {
		p.ProposalID = uuid.New().String()
	}
	p.UpdatedAt = time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}

	evidenceJSON, err := json.Marshal(p.EvidenceIDs)
	if err != nil {
		return "", fmt.Errorf("marshal evidence: %w", err)
	}

	var reportJSON []byte
	if p.RegressionReport != nil {
		reportJSON, err = json.Marshal(p.RegressionReport)
		if err != nil {
			return "", fmt.Errorf("marshal regression report: %w", err)
		}
	}

	metadataJSON := []byte("{}")
	if p.Metadata != nil {
		metadataJSON, err = json.Marshal(p.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO proposals (
			id, type, cluster_id, failure_pattern, rationale,
			original_content, proposed_content, evidence_ids, status,
			regression_report, metadata, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			proposed_content = EXCLUDED.proposed_content,
			rationale = EXCLUDED.rationale,
			regression_report = EXCLUDED.regression_report,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`, p.ProposalID, p.Type, p.ClusterID, p.FailurePattern, p.Rationale,
		p.OriginalContent, p.ProposedContent, evidenceJSON, p.Status,
		reportJSON, metadataJSON, p.CreatedAt, p.UpdatedAt)

	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}

	return p.ProposalID, nil
}

func (r *PostgresRepository) GetProposal(ctx context.Context, id string) (*domain.ImprovementProposal, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, type, cluster_id, failure_pattern, rationale,
			original_content, proposed_content, evidence_ids, status,
			regression_report, metadata, created_at, updated_at
		FROM proposals
		WHERE id = $1
	`, id)

	p, err := scanProposal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) ListProposals(ctx context.Context, limit, offset int) ([]*domain.ImprovementProposal, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, type, cluster_id, failure_pattern, rationale,
			original_content, proposed_content, evidence_ids, status,
			regression_report, metadata, created_at, updated_at
		FROM proposals
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var proposals []*domain.ImprovementProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}

	return proposals, nil
}

func scanProposal(row pgx.Row) (*domain.ImprovementProposal, error) {
	var p domain.ImprovementProposal
	var evidenceJSON, reportJSON, metadataJSON []byte

	if err := row.Scan(&p.ProposalID, &p.Type, &p.ClusterID, &p.FailurePattern, &p.Rationale,
		&p.OriginalContent, &p.ProposedContent, &evidenceJSON, &p.Status,
		&reportJSON, &metadataJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	if evidenceJSON != nil {
		if err := json.Unmarshal(evidenceJSON, &p.EvidenceIDs); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}

	if reportJSON != nil {
		p.RegressionReport = &domain.RegressionReport{}
		if err := json.Unmarshal(reportJSON, p.RegressionReport); err != nil {
			return nil, fmt.Errorf("unmarshal regression report: %w", err)
		}
	}

	p.Metadata = make(map[string]any)
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &p, nil
}
