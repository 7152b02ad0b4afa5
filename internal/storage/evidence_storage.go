package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// refPrefix: префикс непрозрачной ссылки на доказательство.
const refPrefix = "evidence/"

// sniffLen: сколько байт filetype нужно для определения типа.
const sniffLen = 261

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
	"application/zip": true,
	"video/mp4":       true,
}

// Evidence: сохранённый файл доказательства.
type Evidence struct {
	Ref  string `json:"ref"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// EvidenceStorage хранит файлы доказательств по спорам на диске.
type EvidenceStorage struct {
	rootPath       string
	maxUploadBytes int64
}

func NewEvidenceStorage(rootPath string, maxUploadMB int64) (*EvidenceStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &EvidenceStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

func (s *EvidenceStorage) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Save проверяет реальный тип файла по магическим байтам и сохраняет его.
// Возвращает ссылку вида evidence/<owner>/<id>.<ext>, её и передают в addEvidence.
func (s *EvidenceStorage) Save(ctx context.Context, ownerID uuid.UUID, originalName string, r io.Reader) (Evidence, error) {
	if err := ctx.Err(); err != nil {
		return Evidence{}, err
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Evidence{}, fmt.Errorf("storage: ошибка чтения файла: %w", err)
	}
	if len(head) == 0 {
		return Evidence{}, apperror.New(apperror.ErrCodeValidation, "файл пустой")
	}

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return Evidence{}, apperror.New(apperror.ErrCodeValidation, "не удалось определить тип файла")
	}
	if !allowedMimeTypes[kind.MIME.Value] {
		return Evidence{}, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неподдерживаемый тип файла (%s)", kind.MIME.Value))
	}
	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" && !sameExtension(ext, "."+kind.Extension) {
		return Evidence{}, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("расширение файла (%s) не соответствует реальному типу (.%s)", ext, kind.Extension))
	}

	ownerDir := filepath.Join(s.rootPath, ownerID.String())
	if err := os.MkdirAll(ownerDir, 0o755); err != nil {
		return Evidence{}, fmt.Errorf("storage: не удалось создать каталог пользователя: %w", err)
	}

	fileName := uuid.NewString() + "." + kind.Extension
	targetPath := filepath.Join(ownerDir, fileName)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return Evidence{}, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, &io.LimitedReader{R: br, N: s.maxUploadBytes + 1})
	if err != nil {
		_ = os.Remove(tempPath)
		return Evidence{}, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}
	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return Evidence{}, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("размер файла превышает лимит %d байт", s.maxUploadBytes))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return Evidence{}, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return Evidence{}, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	return Evidence{
		Ref:  refPrefix + ownerID.String() + "/" + fileName,
		MIME: kind.MIME.Value,
		Size: written,
	}, nil
}

// Owns сообщает, что ссылка указывает на файл, загруженный этим пользователем.
func (s *EvidenceStorage) Owns(ctx context.Context, ownerID uuid.UUID, ref string) bool {
	if ctx.Err() != nil {
		return false
	}
	path, ok := s.resolve(ref)
	if !ok || !strings.HasPrefix(strings.TrimPrefix(ref, refPrefix), ownerID.String()+"/") {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (s *EvidenceStorage) resolve(ref string) (string, bool) {
	rel, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || rel == "" || strings.Contains(rel, "..") || strings.Contains(rel, "\\") {
		return "", false
	}
	parts := strings.Split(rel, "/")
	if len(parts) != 2 {
		return "", false
	}
	if _, err := uuid.Parse(parts[0]); err != nil {
		return "", false
	}
	return filepath.Join(s.rootPath, parts[0], parts[1]), true
}

func sameExtension(got, want string) bool {
	if got == want {
		return true
	}
	// .jpg и .jpeg - это одно и то же
	jpeg := func(e string) bool { return e == ".jpg" || e == ".jpeg" }
	return jpeg(got) && jpeg(want)
}
