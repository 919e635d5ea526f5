package installs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
)

// Record describes one completed install.
type Record struct {
	Variant         release.Variant
	Hash            string
	Directory       string
	ArchiveChecksum string
	InstalledAt     time.Time
}

// Repository defines persistence operations for install records.
type Repository interface {
	Get(ctx context.Context, variant release.Variant) (Record, error)
	Put(ctx context.Context, record Record) error
	Delete(ctx context.Context, variant release.Variant) error
}

var _ Repository = (*FileRepository)(nil)

// FileRepository persists install records to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

const (
	fieldHash      = "hash"
	fieldDirectory = "directory"
	fieldChecksum  = "archive_checksum"
	fieldInstalled = "installed_at"

	filePermissions = 0o600
	dirPermissions  = 0o755
)

var (
	// ErrNotFound is returned when no record exists for a variant.
	ErrNotFound = errors.New("install record not found")
	// errBadRecord is returned when a stored record cannot be decoded.
	errBadRecord = errors.New("malformed install record")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Get returns the record of a variant.
func (r *FileRepository) Get(_ context.Context, variant release.Variant) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return Record{}, err
	}

	record, ok := records[variant]
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", variant, ErrNotFound)
	}

	return record, nil
}

// Put stores record, replacing the previous one of the same variant.
func (r *FileRepository) Put(_ context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}

	records[record.Variant] = record

	return r.save(records)
}

// Delete drops the record of a variant. Deleting a missing record is not an error.
func (r *FileRepository) Delete(_ context.Context, variant release.Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load()
	if err != nil {
		return err
	}

	if _, ok := records[variant]; !ok {
		return nil
	}

	delete(records, variant)

	return r.save(records)
}

// load reads the state file; a missing file is an empty set.
func (r *FileRepository) load() (map[release.Variant]Record, error) {
	records := make(map[release.Variant]Record)

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return records, nil
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var root structpb.Struct
	if err = protojson.Unmarshal(contents, &root); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	for name, value := range root.GetFields() {
		variant, err := release.ParseVariant(name)
		if err != nil {
			return nil, fmt.Errorf("decode state file: %w", err)
		}

		record, err := fromProto(variant, value.GetStructValue())
		if err != nil {
			return nil, err
		}

		records[variant] = record
	}

	return records, nil
}

// save writes records next to the state file and renames it into place.
func (r *FileRepository) save(records map[release.Variant]Record) error {
	root := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(records))}
	for variant, record := range records {
		root.Fields[variant.String()] = structpb.NewStructValue(toProto(record))
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), dirPermissions); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	temporaryPath := r.path + ".tmp"
	if err = os.WriteFile(temporaryPath, data, filePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(temporaryPath, r.path); err != nil {
		_ = os.Remove(temporaryPath)

		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// fromProto converts a stored struct into a Record.
func fromProto(variant release.Variant, s *structpb.Struct) (Record, error) {
	if s == nil {
		return Record{}, fmt.Errorf("%s: %w", variant, errBadRecord)
	}

	fields := s.GetFields()

	record := Record{
		Variant:         variant,
		Hash:            fields[fieldHash].GetStringValue(),
		Directory:       fields[fieldDirectory].GetStringValue(),
		ArchiveChecksum: fields[fieldChecksum].GetStringValue(),
	}

	if record.Hash == "" {
		return Record{}, fmt.Errorf("%s: missing hash: %w", variant, errBadRecord)
	}

	if raw := fields[fieldInstalled].GetStringValue(); raw != "" {
		installedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w: %w", variant, errBadRecord, err)
		}

		record.InstalledAt = installedAt
	}

	return record, nil
}

// toProto converts a Record into its stored form.
func toProto(record Record) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldHash:      structpb.NewStringValue(record.Hash),
		fieldDirectory: structpb.NewStringValue(record.Directory),
		fieldChecksum:  structpb.NewStringValue(record.ArchiveChecksum),
	}

	if !record.InstalledAt.IsZero() {
		fields[fieldInstalled] = structpb.NewStringValue(record.InstalledAt.UTC().Format(time.RFC3339Nano))
	}

	return &structpb.Struct{Fields: fields}
}
