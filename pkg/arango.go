package pkg

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/arangodb/go-driver"
	"github.com/arangodb/go-driver/http"
	"github.com/fatih/structs"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"golang.org/x/net/context"
)

const (
	runsCollection        = "Runs"
	percentagesCollection = "Percentages"
	edgesCollection       = "PercentagesEdges"
)

type ArangoStore struct {
	db     driver.Database
	logger *zerolog.Logger
}

type PercentageEdge struct {
	From       string `json:"_from"`
	To         string `json:"_to"`
	Collection string `json:"collection"`
}

func ConnectToArango(
	endpoint,
	username,
	password,
	arangoCertificate,
	database string,
	logger *zerolog.Logger,
) (*ArangoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	caCertificate, err := base64.StdEncoding.DecodeString(arangoCertificate)
	if err != nil {
		return nil, fmt.Errorf("failed decoding certificate: %w", err)
	}

	// Prepare TLS configuration
	certpool := x509.NewCertPool()
	if success := certpool.AppendCertsFromPEM(caCertificate); !success {
		return nil, errors.New("invalid certificate")
	}
	tlsConfig := &tls.Config{RootCAs: certpool}

	conn, err := http.NewConnection(http.ConnectionConfig{
		Endpoints: []string{endpoint},
		TLSConfig: tlsConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed creating HTTP connection: %w", err)
	}

	c, err := driver.NewClient(driver.ClientConfig{
		Connection:     conn,
		Authentication: driver.BasicAuthentication(username, password),
	})
	if err != nil {
		return nil, fmt.Errorf("failed creating driver connection: %w", err)
	}

	db, err := c.Database(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed getting database %q: %w", database, err)
	}

	return &ArangoStore{db: db, logger: logger}, nil
}

// runKey is unique per batch and sorts by capture second.
func runKey(date time.Time) (string, error) {
	id, err := ksuid.NewRandomWithTime(date)
	if err != nil {
		return "", fmt.Errorf("failed generating run key: %w", err)
	}
	return id.String(), nil
}

func runDocument(run string, date time.Time) map[string]interface{} {
	return map[string]interface{}{
		"_key":       run,
		"createdAt":  date.UnixMicro(),
		"collection": runsCollection,
	}
}

func percentageDocument(row PersistedRow, run string) map[string]interface{} {
	node := structs.Map(row)
	node["run"] = run
	node["createdAt"] = row.Date.UnixMicro()
	node["collection"] = percentagesCollection
	return node
}

// AppendBatch stores a run node, one document per row and an edge from the run to
// each row, all in a single stream transaction.
func (graph *ArangoStore) AppendBatch(
	ctx context.Context,
	dataset VaccinationDataset,
	capturedAt time.Time,
) ([]PersistedRow, error) {
	rows := StampDataset(dataset, capturedAt)
	if len(rows) == 0 {
		return rows, nil
	}
	run, err := runKey(rows[0].Date)
	if err != nil {
		return nil, err
	}

	tid, err := graph.db.BeginTransaction(ctx, driver.TransactionCollections{
		Write: []string{runsCollection, percentagesCollection, edgesCollection},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed beginning transaction: %w", err)
	}
	tctx := driver.WithTransactionID(ctx, tid)

	if err := graph.writeRun(tctx, run, rows); err != nil {
		if abortErr := graph.db.AbortTransaction(ctx, tid, nil); abortErr != nil {
			graph.logger.Err(abortErr).Str("run", run).Msg("Failed to abort transaction")
		}
		graph.logger.Err(err).Str("run", run).Int("rows", len(rows)).Msg("Failed to append percentages batch")
		return nil, err
	}
	if err := graph.db.CommitTransaction(ctx, tid, nil); err != nil {
		return nil, fmt.Errorf("failed committing run %s: %w", run, err)
	}
	graph.logger.Info().Str("run", run).Int("rows", len(rows)).Msg("Appended percentages batch")
	return rows, nil
}

func (graph *ArangoStore) writeRun(ctx context.Context, run string, rows []PersistedRow) error {
	runs, err := graph.db.Collection(ctx, runsCollection)
	if err != nil {
		return fmt.Errorf("failed getting %q collection: %w", runsCollection, err)
	}
	if _, err := runs.CreateDocument(ctx, runDocument(run, rows[0].Date)); err != nil {
		return fmt.Errorf("failed creating run node: %w", err)
	}

	nodes := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, percentageDocument(row, run))
	}
	percentages, err := graph.db.Collection(ctx, percentagesCollection)
	if err != nil {
		return fmt.Errorf("failed getting %q collection: %w", percentagesCollection, err)
	}
	metas, errs, err := percentages.CreateDocuments(ctx, nodes)
	if err != nil {
		return fmt.Errorf("failed creating percentages documents: %w", err)
	}
	if err := errs.FirstNonNil(); err != nil {
		return fmt.Errorf("failed creating percentages documents: %w", err)
	}

	edges := make([]PercentageEdge, 0, len(metas))
	for _, meta := range metas {
		edges = append(edges, PercentageEdge{
			From:       fmt.Sprintf("%s/%s", runsCollection, run),
			To:         meta.ID.String(),
			Collection: edgesCollection,
		})
	}
	edgesCol, err := graph.db.Collection(ctx, edgesCollection)
	if err != nil {
		return fmt.Errorf("failed getting %q collection: %w", edgesCollection, err)
	}
	_, errs, err = edgesCol.CreateDocuments(ctx, edges)
	if err != nil {
		return fmt.Errorf("failed creating edges: %w", err)
	}
	return errs.FirstNonNil()
}

func (graph *ArangoStore) LatestBatch(ctx context.Context) ([]PersistedRow, error) {
	return graph.query(
		ctx,
		"LET latest = FIRST(FOR r IN Runs SORT r.createdAt DESC, r._key DESC LIMIT 1 RETURN r._key) "+
			"FOR p IN Percentages FILTER p.run == latest SORT p.iso_code RETURN p",
		nil,
	)
}

func (graph *ArangoStore) History(ctx context.Context, isoCode string) ([]PersistedRow, error) {
	return graph.query(
		ctx,
		"FOR p IN Percentages FILTER p.iso_code == @isoCode SORT p.createdAt, p.run RETURN p",
		map[string]interface{}{
			"isoCode": isoCode,
		},
	)
}

func (graph *ArangoStore) query(
	ctx context.Context,
	query string,
	bindVars map[string]interface{},
) (rows []PersistedRow, err error) {
	cursor, err := graph.db.Query(driver.WithQueryCount(ctx), query, bindVars)
	if err != nil {
		return rows, fmt.Errorf("failed querying database: %w", err)
	}

	defer cursor.Close() // nolint: errcheck

	for {
		var row PersistedRow
		_, err := cursor.ReadDocument(ctx, &row)
		if driver.IsNoMoreDocuments(err) {
			break
		} else if err != nil {
			return rows, fmt.Errorf("failed reading document: %w", err)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func (graph *ArangoStore) Close() error {
	return nil
}
