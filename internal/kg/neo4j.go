package kg

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	lexerrors "github.com/lexfuse/lexfuse/internal/errors"
)

// Neo4jConfig configures the graph connection.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Timeout  time.Duration
}

// Neo4jGraph implements KnowledgeGraph against a Neo4j database holding
// Crime and Article nodes linked by RELATED_TO edges with confidence.
type Neo4jGraph struct {
	driver  neo4j.DriverWithContext
	timeout time.Duration
}

var _ KnowledgeGraph = (*Neo4jGraph)(nil)

// articleNoPattern matches statute references like "第234条".
var articleNoPattern = regexp.MustCompile(`第(\d{1,4})条`)

// NewNeo4jGraph connects to Neo4j and verifies connectivity.
func NewNeo4jGraph(ctx context.Context, cfg Neo4jConfig) (*Neo4jGraph, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, lexerrors.KnowledgeGraphError("creating neo4j driver", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, lexerrors.KnowledgeGraphError("verifying neo4j connectivity", err)
	}

	return &Neo4jGraph{driver: driver, timeout: cfg.Timeout}, nil
}

// DetectEntities finds crime names present in the text via the graph and
// article numbers via statute-reference parsing verified against the
// graph.
func (g *Neo4jGraph) DetectEntities(ctx context.Context, text string) (Entities, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var entities Entities

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	crimeQuery := `
		MATCH (c:Crime)
		WHERE $text CONTAINS c.name
		RETURN c.name AS name
		ORDER BY size(c.name) DESC`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, crimeQuery, map[string]any{"text": text})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return Entities{}, lexerrors.KnowledgeGraphError("detecting crimes", err)
	}

	for _, record := range result.([]*neo4j.Record) {
		if name, ok := record.Get("name"); ok {
			if s, ok := name.(string); ok && s != "" {
				entities.Crimes = append(entities.Crimes, s)
			}
		}
	}

	candidates := parseArticleNumbers(text)
	if len(candidates) > 0 {
		articleQuery := `
			UNWIND $numbers AS number
			MATCH (a:Article {number: number})
			RETURN a.number AS number`

		result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, articleQuery, map[string]any{"numbers": candidates})
			if err != nil {
				return nil, err
			}
			return res.Collect(ctx)
		})
		if err != nil {
			return Entities{}, lexerrors.KnowledgeGraphError("verifying article numbers", err)
		}

		for _, record := range result.([]*neo4j.Record) {
			if number, ok := record.Get("number"); ok {
				if n, ok := number.(int64); ok {
					entities.Articles = append(entities.Articles, int(n))
				}
			}
		}
	}

	return entities, nil
}

// parseArticleNumbers extracts statute numbers referenced in the text.
func parseArticleNumbers(text string) []int {
	matches := articleNoPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[int]struct{}, len(matches))
	var numbers []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		numbers = append(numbers, n)
	}
	return numbers
}

// RelatedArticles returns the top articles associated with a crime,
// confidence descending.
func (g *Neo4jGraph) RelatedArticles(ctx context.Context, crime string, topK int) ([]RelatedArticle, error) {
	if topK <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	query := `
		MATCH (c:Crime {name: $crime})-[r:RELATED_TO]->(a:Article)
		RETURN a.number AS number, r.confidence AS confidence
		ORDER BY r.confidence DESC
		LIMIT $topK`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"crime": crime, "topK": topK})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, lexerrors.KnowledgeGraphError("looking up related articles", err)
	}

	var related []RelatedArticle
	for _, record := range result.([]*neo4j.Record) {
		number, _ := record.Get("number")
		confidence, _ := record.Get("confidence")

		n, ok := number.(int64)
		if !ok {
			continue
		}
		related = append(related, RelatedArticle{
			ArticleNo:  int(n),
			Confidence: asFloat(confidence),
		})
	}
	return related, nil
}

// RelatedCrimes returns the top crimes associated with an article,
// confidence descending.
func (g *Neo4jGraph) RelatedCrimes(ctx context.Context, articleNo int, topK int) ([]RelatedCrime, error) {
	if topK <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer func() { _ = session.Close(ctx) }()

	query := `
		MATCH (c:Crime)-[r:RELATED_TO]->(a:Article {number: $number})
		RETURN c.name AS name, r.confidence AS confidence
		ORDER BY r.confidence DESC
		LIMIT $topK`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"number": articleNo, "topK": topK})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, lexerrors.KnowledgeGraphError("looking up related crimes", err)
	}

	var related []RelatedCrime
	for _, record := range result.([]*neo4j.Record) {
		name, _ := record.Get("name")
		confidence, _ := record.Get("confidence")

		s, ok := name.(string)
		if !ok || s == "" {
			continue
		}
		related = append(related, RelatedCrime{
			Crime:      s,
			Confidence: asFloat(confidence),
		})
	}
	return related, nil
}

func asFloat(v any) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case int64:
		return float64(f)
	default:
		return 0
	}
}

// Close closes the driver.
func (g *Neo4jGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}
