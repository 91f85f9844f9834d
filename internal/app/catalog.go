package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"pianolearn/internal/util"
	"pianolearn/pkg/domain"
)

const (
	defaultBadge      = "New"
	defaultBadgeColor = "bg-blue-500"
)

// ProductInput carries product metadata from the admin panel. Zero values
// leave the corresponding field untouched on update.
type ProductInput struct {
	Title         string
	Subtitle      string
	Description   string
	Price         float64
	OriginalPrice float64
	Rating        float64
	Pages         int
	Badge         string
	BadgeColor    string
	Image         string
	Status        domain.ProductStatus
}

// FileUpload is one uploaded PDF.
type FileUpload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// ListCatalog returns the active products shown to shoppers.
func (a *App) ListCatalog() ([]domain.Product, error) {
	return a.store.ListActiveProducts()
}

// GetCatalogProduct returns one active product.
func (a *App) GetCatalogProduct(id string) (domain.Product, error) {
	product, ok, err := a.store.GetProduct(id)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok || product.Status != domain.ProductActive {
		return domain.Product{}, ErrProductNotFound
	}
	return product, nil
}

// ListProducts returns every product regardless of status.
func (a *App) ListProducts() ([]domain.Product, error) {
	return a.store.ListProducts()
}

// GetProduct returns one product regardless of status.
func (a *App) GetProduct(id string) (domain.Product, error) {
	product, ok, err := a.store.GetProduct(id)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	return product, nil
}

// CreateProduct validates metadata and the optional PDF, stores the file and
// persists the product. The stored file is removed again when persistence
// fails.
func (a *App) CreateProduct(ctx context.Context, in ProductInput, file *FileUpload) (domain.Product, error) {
	if err := validateMetadata(in, false); err != nil {
		return domain.Product{}, err
	}
	now := a.now()
	product := domain.Product{
		ID:            util.NewID(),
		Title:         strings.TrimSpace(in.Title),
		Subtitle:      strings.TrimSpace(in.Subtitle),
		Description:   strings.TrimSpace(in.Description),
		Price:         in.Price,
		OriginalPrice: in.OriginalPrice,
		Rating:        in.Rating,
		Pages:         in.Pages,
		Badge:         strings.TrimSpace(in.Badge),
		BadgeColor:    strings.TrimSpace(in.BadgeColor),
		Image:         strings.TrimSpace(in.Image),
		Status:        in.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if product.OriginalPrice <= 0 {
		product.OriginalPrice = product.Price * 1.5
	}
	if product.Badge == "" {
		product.Badge = defaultBadge
	}
	if product.BadgeColor == "" {
		product.BadgeColor = defaultBadgeColor
	}
	if product.Status == "" {
		product.Status = domain.ProductActive
	}
	if file != nil {
		key, pages, err := a.storePDF(ctx, product.ID, file)
		if err != nil {
			return domain.Product{}, err
		}
		product.FilePath = key
		product.PreviewPath = "/uploads/" + key
		if product.Pages == 0 {
			product.Pages = pages
		}
	}
	if err := a.store.SaveProduct(product); err != nil {
		if product.FilePath != "" {
			_ = a.blobs.Delete(ctx, product.FilePath)
		}
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	return product, nil
}

// validateMetadata enforces the product form rules. On update every field is
// optional, so only supplied values are checked.
func validateMetadata(in ProductInput, update bool) error {
	title := strings.TrimSpace(in.Title)
	if title == "" && !update {
		return invalid("title required")
	}
	if title != "" && len(title) < 3 {
		return invalid("title must be at least 3 characters")
	}
	description := strings.TrimSpace(in.Description)
	if description == "" && !update {
		return invalid("description required")
	}
	if description != "" && len(description) < 10 {
		return invalid("description must be at least 10 characters")
	}
	if in.Price < 0 || (!update && in.Price == 0) {
		return invalid("valid price required")
	}
	return nil
}

// UpdateProduct applies the supplied fields and optionally replaces the file.
func (a *App) UpdateProduct(ctx context.Context, id string, in ProductInput, file *FileUpload) (domain.Product, error) {
	if err := validateMetadata(in, true); err != nil {
		return domain.Product{}, err
	}
	product, ok, err := a.store.GetProduct(id)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	if v := strings.TrimSpace(in.Title); v != "" {
		product.Title = v
	}
	if v := strings.TrimSpace(in.Subtitle); v != "" {
		product.Subtitle = v
	}
	if v := strings.TrimSpace(in.Description); v != "" {
		product.Description = v
	}
	if in.Price > 0 {
		product.Price = in.Price
	}
	if in.OriginalPrice > 0 {
		product.OriginalPrice = in.OriginalPrice
	}
	if in.Rating > 0 {
		product.Rating = in.Rating
	}
	if in.Pages > 0 {
		product.Pages = in.Pages
	}
	if v := strings.TrimSpace(in.Badge); v != "" {
		product.Badge = v
	}
	if v := strings.TrimSpace(in.BadgeColor); v != "" {
		product.BadgeColor = v
	}
	if v := strings.TrimSpace(in.Image); v != "" {
		product.Image = v
	}
	if in.Status != "" {
		switch in.Status {
		case domain.ProductActive, domain.ProductInactive, domain.ProductDraft:
			product.Status = in.Status
		default:
			return domain.Product{}, invalid("unknown status")
		}
	}
	oldKey := product.FilePath
	if file != nil {
		key, pages, err := a.storePDF(ctx, product.ID, file)
		if err != nil {
			return domain.Product{}, err
		}
		product.FilePath = key
		product.PreviewPath = "/uploads/" + key
		if in.Pages == 0 {
			product.Pages = pages
		}
	}
	product.UpdatedAt = a.now()
	if err := a.store.SaveProduct(product); err != nil {
		if file != nil && product.FilePath != oldKey {
			_ = a.blobs.Delete(ctx, product.FilePath)
		}
		return domain.Product{}, fmt.Errorf("save product: %w", err)
	}
	if file != nil && oldKey != "" && oldKey != product.FilePath {
		_ = a.blobs.Delete(ctx, oldKey)
	}
	return product, nil
}

// DeleteProduct removes the product and its stored file.
func (a *App) DeleteProduct(ctx context.Context, id string) error {
	product, ok, err := a.store.GetProduct(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProductNotFound
	}
	if err := a.store.DeleteProduct(id); err != nil {
		return err
	}
	if product.FilePath != "" {
		_ = a.blobs.Delete(ctx, product.FilePath)
	}
	return nil
}

// storePDF validates the upload as a readable PDF and writes it to blob
// storage. It returns the storage key and the parsed page count.
func (a *App) storePDF(ctx context.Context, productID string, file *FileUpload) (string, int, error) {
	if file.Size > a.maxUploadBytes {
		return "", 0, invalid("file exceeds upload limit")
	}
	data, err := io.ReadAll(io.LimitReader(file.Reader, a.maxUploadBytes+1))
	if err != nil {
		return "", 0, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > a.maxUploadBytes {
		return "", 0, invalid("file exceeds upload limit")
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, ErrNotPDF
	}
	pages := reader.NumPage()
	if pages <= 0 {
		return "", 0, ErrNotPDF
	}
	key := buildStorageKey(productID, file.Filename)
	if err := a.blobs.Save(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return "", 0, fmt.Errorf("save file: %w", err)
	}
	return key, pages, nil
}

func buildStorageKey(productID, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "product.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return path.Join("products", productID, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
