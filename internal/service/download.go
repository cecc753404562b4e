package service

import (
	"context"
	"errors"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/academy-store/internal/model"
	"github.com/mmeshcher/academy-store/internal/repository"
)

// ErrStorageNotConfigured возвращается, если хранилище файлов не подключено.
var ErrStorageNotConfigured = errors.New("file storage not configured")

// Download описывает выданную ссылку на файл.
type Download struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Download выдаёт ссылку на файл материала. Платный файл доступен администратору или
// владельцу оплаченного заказа, включающего эту категорию файла. Скачивание фиксируется
// условной записью, поэтому заказ, возвращённый в промежутке, файл не выдаёт.
func (s *Service) Download(ctx context.Context, actor Actor, materialID string, ft model.FileType) (*Download, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthorized
	}
	if ft == "" {
		ft = model.FileTypeProblem
	}
	if !ft.Valid() {
		return nil, invalid("type", "must be problem or etc")
	}

	m, err := s.activeMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	key := m.FileFor(ft)
	if key == "" {
		return nil, ErrFileUnavailable
	}

	var order *model.Order
	if !m.IsFree && !actor.IsAdmin() {
		order, err = s.repo.FindPaidOrder(ctx, actor.UserID, m.MaterialID, ft)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return nil, ErrForbidden
			}
			return nil, err
		}
	}

	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}
	name := DownloadName(m, ft, key)
	url, err := s.storage.DownloadURL(ctx, key, name)
	if err != nil {
		return nil, err
	}

	if order != nil {
		if err := s.repo.RecordDownload(ctx, order.OrderID, ft, s.now()); err != nil {
			if errors.Is(err, repository.ErrNotMatched) {
				return nil, ErrForbidden
			}
			return nil, err
		}
	}

	if err := s.repo.IncrementDownloadCount(ctx, m.MaterialID); err != nil {
		s.logger.Warn("download count not updated", zap.String("material_id", m.MaterialID), zap.Error(err))
	}

	return &Download{URL: url, Filename: name}, nil
}

// DownloadName собирает имя файла для сохранения у пользователя.
func DownloadName(m *model.Material, ft model.FileType, key string) string {
	title := strings.ReplaceAll(MaterialTitle(m), " ", "_")
	if title == "" {
		title = m.MaterialID
	}
	if ft == model.FileTypeEtc {
		title += "_(기타)"
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(key)), ".")
	if ext == "" {
		ext = "pdf"
	}
	return title + "." + ext
}
