package graphdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	driver "github.com/arangodb/go-driver"
	"github.com/arangodb/go-driver/http"

	"github.com/c360/kgraph/aql"
	"github.com/c360/kgraph/errors"
	"github.com/c360/kgraph/types"
	"github.com/c360/kgraph/vocabulary"
)

// ArangoConfig is the connection configuration for the backing store.
type ArangoConfig struct {
	Endpoints      []string `yaml:"endpoints"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	DatabasePrefix string   `yaml:"databasePrefix"`
}

// DefaultArangoConfig returns a single-node local setup.
func DefaultArangoConfig() ArangoConfig {
	return ArangoConfig{
		Endpoints:      []string{"http://localhost:8529"},
		Username:       "root",
		DatabasePrefix: "kgraph",
	}
}

// arangoDatabase adapts one ArangoDB database to the Database interface.
type arangoDatabase struct {
	db     driver.Database
	logger *slog.Logger
}

// ConnectArango opens the per-stage databases, creating missing ones.
func ConnectArango(ctx context.Context, cfg ArangoConfig, logger *slog.Logger) (*Databases, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.WrapInvalid(nil, "graphdb", "ConnectArango", "no endpoints configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := http.NewConnection(http.ConnectionConfig{Endpoints: cfg.Endpoints})
	if err != nil {
		return nil, errors.WrapTransient(err, "graphdb", "ConnectArango", "connection setup failed")
	}
	client, err := driver.NewClient(driver.ClientConfig{
		Connection:     conn,
		Authentication: driver.BasicAuthentication(cfg.Username, cfg.Password),
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "graphdb", "ConnectArango", "client setup failed")
	}

	stages := map[types.Stage]Database{}
	for _, stage := range []types.Stage{types.StageNative, types.StageInProgress, types.StageReleased} {
		name := fmt.Sprintf("%s-%s", cfg.DatabasePrefix, strings.ToLower(string(stage)))
		db, err := openOrCreate(ctx, client, name)
		if err != nil {
			return nil, err
		}
		logger.Info("stage database ready", "stage", stage, "database", name)
		stages[stage] = &arangoDatabase{db: db, logger: logger.With("database", name)}
	}
	return NewDatabases(stages[types.StageNative], stages[types.StageInProgress], stages[types.StageReleased])
}

func openOrCreate(ctx context.Context, client driver.Client, name string) (driver.Database, error) {
	exists, err := client.DatabaseExists(ctx, name)
	if err != nil {
		return nil, errors.WrapTransient(err, "graphdb", "openOrCreate", "database lookup failed")
	}
	if !exists {
		db, err := client.CreateDatabase(ctx, name, nil)
		if err != nil {
			return nil, errors.WrapTransient(err, "graphdb", "openOrCreate", "database creation failed")
		}
		return db, nil
	}
	db, err := client.Database(ctx, name)
	if err != nil {
		return nil, errors.WrapTransient(err, "graphdb", "openOrCreate", "database open failed")
	}
	return db, nil
}

func (a *arangoDatabase) GetDocument(ctx context.Context, id string) (types.Document, error) {
	collName, key, ok := strings.Cut(id, "/")
	if !ok {
		return nil, errors.WrapInvalid(nil, "graphdb", "GetDocument", "malformed document id "+id)
	}
	exists, err := a.db.CollectionExists(ctx, collName)
	if err != nil {
		return nil, errors.WrapTransient(err, "graphdb", "GetDocument", "collection lookup failed")
	}
	if !exists {
		return nil, nil
	}
	coll, err := a.db.Collection(ctx, collName)
	if err != nil {
		return nil, errors.WrapTransient(err, "graphdb", "GetDocument", "collection open failed")
	}
	var doc types.Document
	if _, err := coll.ReadDocument(ctx, key, &doc); err != nil {
		if driver.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "graphdb", "GetDocument", "document read failed")
	}
	return doc, nil
}

func (a *arangoDatabase) Query(ctx context.Context, query string, bindVars map[string]any) ([]types.Document, error) {
	docs, _, err := a.run(ctx, query, bindVars, false)
	return docs, err
}

func (a *arangoDatabase) QueryWithTotal(ctx context.Context, query string, bindVars map[string]any) ([]types.Document, int64, error) {
	return a.run(ctx, query, bindVars, true)
}

func (a *arangoDatabase) run(ctx context.Context, query string, bindVars map[string]any, withTotal bool) ([]types.Document, int64, error) {
	queryCtx := ctx
	if withTotal {
		queryCtx = driver.WithQueryFullCount(ctx)
	}
	cursor, err := a.db.Query(queryCtx, query, bindVars)
	if err != nil {
		return nil, 0, errors.WrapTransient(err, "graphdb", "Query", "query execution failed")
	}
	defer cursor.Close()

	docs := []types.Document{}
	for cursor.HasMore() {
		var doc types.Document
		if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
			return nil, 0, errors.WrapTransient(err, "graphdb", "Query", "result decoding failed")
		}
		docs = append(docs, doc)
	}
	total := int64(len(docs))
	if withTotal {
		if stats := cursor.Statistics(); stats != nil {
			total = stats.FullCount()
		}
	}
	return docs, total, nil
}

func (a *arangoDatabase) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := a.db.CollectionExists(ctx, name)
	if err != nil {
		return false, errors.WrapTransient(err, "graphdb", "CollectionExists", "collection lookup failed")
	}
	return exists, nil
}

func (a *arangoDatabase) DocumentCollections(ctx context.Context) ([]string, error) {
	return a.collectionsOfType(ctx, driver.CollectionTypeDocument)
}

func (a *arangoDatabase) EdgeCollections(ctx context.Context) ([]string, error) {
	return a.collectionsOfType(ctx, driver.CollectionTypeEdge)
}

func (a *arangoDatabase) collectionsOfType(ctx context.Context, collType driver.CollectionType) ([]string, error) {
	colls, err := a.db.Collections(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "graphdb", "collectionsOfType", "collection listing failed")
	}
	var names []string
	for _, coll := range colls {
		if strings.HasPrefix(coll.Name(), "_") {
			continue
		}
		props, err := coll.Properties(ctx)
		if err != nil {
			return nil, errors.WrapTransient(err, "graphdb", "collectionsOfType", "collection properties failed")
		}
		if props.Type == collType {
			names = append(names, coll.Name())
		}
	}
	return names, nil
}

func (a *arangoDatabase) UpsertDocument(ctx context.Context, collection, key string, doc types.Document) error {
	coll, err := a.db.Collection(ctx, collection)
	if err != nil {
		return errors.WrapTransient(err, "graphdb", "UpsertDocument", "collection open failed")
	}
	payload := doc.Copy()
	payload[vocabulary.InternalKey] = key
	exists, err := coll.DocumentExists(ctx, key)
	if err != nil {
		return errors.WrapTransient(err, "graphdb", "UpsertDocument", "document lookup failed")
	}
	if exists {
		if _, err := coll.ReplaceDocument(ctx, key, payload); err != nil {
			return errors.WrapTransient(err, "graphdb", "UpsertDocument", "document replace failed")
		}
		return nil
	}
	if _, err := coll.CreateDocument(ctx, payload); err != nil {
		return errors.WrapTransient(err, "graphdb", "UpsertDocument", "document creation failed")
	}
	return nil
}

func (a *arangoDatabase) RemoveDocument(ctx context.Context, id string) error {
	collName, key, ok := strings.Cut(id, "/")
	if !ok {
		return errors.WrapInvalid(nil, "graphdb", "RemoveDocument", "malformed document id "+id)
	}
	exists, err := a.db.CollectionExists(ctx, collName)
	if err != nil {
		return errors.WrapTransient(err, "graphdb", "RemoveDocument", "collection lookup failed")
	}
	if !exists {
		return nil
	}
	coll, err := a.db.Collection(ctx, collName)
	if err != nil {
		return errors.WrapTransient(err, "graphdb", "RemoveDocument", "collection open failed")
	}
	if _, err := coll.RemoveDocument(ctx, key); err != nil && !driver.IsNotFound(err) {
		return errors.WrapTransient(err, "graphdb", "RemoveDocument", "document removal failed")
	}
	return nil
}

func (a *arangoDatabase) EnsureCollection(ctx context.Context, ref aql.CollectionReference) error {
	exists, err := a.db.CollectionExists(ctx, ref.Name)
	if err != nil {
		return errors.WrapTransient(err, "graphdb", "EnsureCollection", "collection lookup failed")
	}
	if exists {
		return nil
	}
	opts := &driver.CreateCollectionOptions{Type: driver.CollectionTypeDocument}
	if ref.Edge {
		opts.Type = driver.CollectionTypeEdge
	}
	if _, err := a.db.CreateCollection(ctx, ref.Name, opts); err != nil {
		if driver.IsConflict(err) {
			return nil
		}
		return errors.WrapTransient(err, "graphdb", "EnsureCollection", "collection creation failed")
	}
	a.logger.Info("collection created", "collection", ref.Name, "edge", ref.Edge)
	return nil
}
