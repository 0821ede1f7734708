// Package persistence contains the default [domain.Persistence]
// implementation. Each line of a datafile is a document in canonical
// extended JSON. Deletions and index declarations are appended as special
// records, so loading replays the file and then compacts it.
package persistence

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/dolmen-go/contextio"
	"github.com/vinicius-lino-figueiredo/godm/adapter/bsonconv"
	"github.com/vinicius-lino-figueiredo/godm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/godm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/godm/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/godm/adapter/storage"
	"github.com/vinicius-lino-figueiredo/godm/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const (
	DefaultDirMode  os.FileMode = 0o755
	DefaultFileMode os.FileMode = 0o644

	deletedKey      = "$$deleted"
	indexCreatedKey = "$$indexCreated"
	indexRemovedKey = "$$indexRemoved"
)

// Persistence implements [domain.Persistence].
type Persistence struct {
	filename              string
	corruptAlertThreshold float64
	fileMode              os.FileMode
	dirMode               os.FileMode
	storage               domain.Storage
	decoder               domain.Decoder
	comparer              domain.Comparer
	hasher                domain.Hasher
	logger                *zap.Logger
}

// NewPersistence returns a new implementation of [domain.Persistence]. An
// empty filename keeps everything in memory.
func NewPersistence(options ...Option) (domain.Persistence, error) {
	p := Persistence{
		corruptAlertThreshold: 0.1,
		fileMode:              DefaultFileMode,
		dirMode:               DefaultDirMode,
		storage:               storage.NewStorage(),
		decoder:               decoder.NewDecoder(),
		comparer:              comparer.NewComparer(),
		hasher:                hasher.NewHasher(),
		logger:                zap.NewNop(),
	}
	for _, option := range options {
		option(&p)
	}

	if strings.HasSuffix(p.filename, "~") {
		return nil, domain.ErrDatafileName{Name: p.filename, Reason: "cannot end with '~', reserved for backup files"}
	}

	return &p, nil
}

// DeletedRecord returns the record that marks the document identified by id
// as removed.
func DeletedRecord(id any) map[string]any {
	return map[string]any{"_id": id, deletedKey: true}
}

// IndexCreatedRecord returns the record that declares an index.
func IndexCreatedRecord(idx domain.IndexRecord) map[string]any {
	keys := make([]any, len(idx.Keys))
	for n, k := range idx.Keys {
		keys[n] = map[string]any{"field": k.Field, "direction": k.Direction}
	}
	decl := map[string]any{
		"name":   idx.Name,
		"keys":   keys,
		"unique": idx.Unique,
		"sparse": idx.Sparse,
	}
	if idx.ExpireAfter != nil {
		decl["expireAfter"] = *idx.ExpireAfter
	}
	return map[string]any{indexCreatedKey: decl}
}

// IndexRemovedRecord returns the record that drops the named index.
func IndexRemovedRecord(name string) map[string]any {
	return map[string]any{indexRemovedKey: name}
}

// PersistNewState implements [domain.Persistence].
func (p *Persistence) PersistNewState(ctx context.Context, records ...map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.filename == "" {
		return nil
	}

	toPersist := new(bytes.Buffer)
	wr := contextio.NewWriter(ctx, toPersist)
	for _, rec := range records {
		b, err := p.marshal(rec)
		if err != nil {
			return err
		}
		if _, err = wr.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	if toPersist.Len() == 0 {
		return nil
	}

	_, err := p.storage.AppendFile(p.filename, p.fileMode, toPersist.Bytes())
	return err
}

// TreatRawStream replays the records read from rawStream and returns the
// resulting documents and indexes.
func (p *Persistence) TreatRawStream(ctx context.Context, rawStream io.Reader) ([]map[string]any, []domain.IndexRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	docs := newDocSet(p.hasher, p.comparer)
	indexes := newIndexSet()

	corruptItems := 0
	dataLength := 0

	lines := bufio.NewScanner(contextio.NewReader(ctx, rawStream))
	lines.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for lines.Scan() {
		line := lines.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		dataLength++
		rec, err := p.unmarshal(line)
		if err != nil {
			corruptItems++
			continue
		}
		if _, ok := rec["_id"]; ok {
			err = p.addOrDeleteDoc(rec, docs)
		} else {
			err = p.addOrDeleteIndex(rec, indexes)
		}
		if err != nil {
			corruptItems++
		}
	}
	if err := lines.Err(); err != nil {
		return nil, nil, err
	}

	if dataLength > 0 {
		rate := float64(corruptItems) / float64(dataLength)
		if rate > p.corruptAlertThreshold {
			return nil, nil, domain.ErrCorruptFiles{
				CorruptionRate:        rate,
				CorruptItems:          corruptItems,
				DataLength:            dataLength,
				CorruptAlertThreshold: p.corruptAlertThreshold,
			}
		}
		if corruptItems > 0 {
			p.logger.Warn("skipped corrupt datafile lines",
				zap.String("filename", p.filename),
				zap.Int("corrupt", corruptItems),
				zap.Int("total", dataLength),
			)
		}
	}

	return docs.values(), indexes.values(), nil
}

func (p *Persistence) addOrDeleteIndex(rec map[string]any, indexes *indexSet) error {
	if decl, ok := rec[indexCreatedKey]; ok {
		var idx domain.IndexRecord
		if err := p.decoder.Decode(decl, &idx); err != nil {
			return err
		}
		if idx.Name == "" || len(idx.Keys) == 0 {
			return domain.ErrType{Want: "index declaration", Actual: decl}
		}
		indexes.set(idx)
		return nil
	}
	if name, ok := rec[indexRemovedKey].(string); ok {
		indexes.remove(name)
		return nil
	}
	return domain.ErrType{Want: "datafile record", Actual: rec}
}

func (p *Persistence) addOrDeleteDoc(rec map[string]any, docs *docSet) error {
	if deleted, _ := rec[deletedKey].(bool); deleted {
		return docs.remove(rec["_id"])
	}
	return docs.set(rec)
}

// LoadDatabase implements [domain.Persistence].
func (p *Persistence) LoadDatabase(ctx context.Context) ([]map[string]any, []domain.IndexRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if p.filename == "" {
		return nil, nil, nil
	}

	if err := p.storage.EnsureParentDirectoryExists(p.filename, p.dirMode); err != nil {
		return nil, nil, err
	}
	if err := p.storage.EnsureDatafileIntegrity(p.filename, p.fileMode); err != nil {
		return nil, nil, err
	}

	fileStream, err := p.storage.ReadFileStream(p.filename, p.fileMode)
	if err != nil {
		return nil, nil, err
	}
	defer fileStream.Close()

	docs, indexes, err := p.TreatRawStream(ctx, fileStream)
	if err != nil {
		return nil, nil, err
	}

	if err = p.PersistCachedDatabase(ctx, docs, indexes); err != nil {
		return nil, nil, err
	}

	p.logger.Debug("loaded datafile",
		zap.String("filename", p.filename),
		zap.Int("documents", len(docs)),
		zap.Int("indexes", len(indexes)),
	)
	return docs, indexes, nil
}

// DropDatabase implements [domain.Persistence].
func (p *Persistence) DropDatabase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.filename == "" {
		return nil
	}
	exists, err := p.storage.Exists(p.filename)
	if err != nil || !exists {
		return err
	}
	return p.storage.Remove(p.filename)
}

// PersistCachedDatabase implements [domain.Persistence].
func (p *Persistence) PersistCachedDatabase(ctx context.Context, docs []map[string]any, indexes []domain.IndexRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.filename == "" {
		return nil
	}

	lines := make([][]byte, 0, len(docs)+len(indexes))
	for _, doc := range docs {
		b, err := p.marshal(doc)
		if err != nil {
			return err
		}
		lines = append(lines, b)
	}
	for _, idx := range indexes {
		b, err := p.marshal(IndexCreatedRecord(idx))
		if err != nil {
			return err
		}
		lines = append(lines, b)
	}

	return p.storage.CrashSafeWriteFileLines(p.filename, lines, p.dirMode, p.fileMode)
}

func (p *Persistence) marshal(rec map[string]any) ([]byte, error) {
	return bson.MarshalExtJSON(rec, true, false)
}

func (p *Persistence) unmarshal(line []byte) (map[string]any, error) {
	var raw bson.M
	if err := bson.UnmarshalExtJSON(line, false, &raw); err != nil {
		return nil, err
	}
	return bsonconv.NormalizeDoc(raw), nil
}
