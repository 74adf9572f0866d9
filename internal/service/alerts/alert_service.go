// Package alerts builds the stock alert digest and delivers it over WhatsApp.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/service/whatsapp"
)

const dateLayout = "2006-01-02"

// MedicineLister loads the current medicines.
type MedicineLister interface {
	ListAll(ctx context.Context) ([]models.Medicine, error)
}

// Service scans the inventory for low stock and expiring medicines.
type Service struct {
	medicines MedicineLister
	messaging whatsapp.MessagingService
	recipient string
	window    time.Duration
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires an alert service. Medicines expiring within window are
// reported alongside the low-stock ones.
func NewService(medicines MedicineLister, messaging whatsapp.MessagingService, recipient string, window time.Duration, location *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &Service{
		medicines: medicines,
		messaging: messaging,
		recipient: recipient,
		window:    window,
		location:  location,
		logger:    logger,
		now:       time.Now,
	}
}

// Scan returns the medicines needing attention, most severe first.
func (s *Service) Scan(ctx context.Context) ([]models.StockAlert, error) {
	meds, err := s.medicines.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan stock alerts: %w", err)
	}

	now := s.now()
	var out []models.StockAlert
	for _, m := range meds {
		status := m.StockStatus()
		expired := m.IsExpired(now)
		if status == models.StockNormal && !expired && !m.ExpiresWithin(now, s.window) {
			continue
		}
		out = append(out, models.StockAlert{
			MedicineID:      m.ID,
			Name:            m.Name,
			Unit:            m.Unit,
			Status:          status,
			CurrentQuantity: m.CurrentQuantity,
			ExpiryDate:      m.ExpiryDate,
			Expired:         expired,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if severity(out[i]) != severity(out[j]) {
			return severity(out[i]) > severity(out[j])
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// FormatDigest renders alerts as one text message, one line per medicine.
func (s *Service) FormatDigest(alerts []models.StockAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stock alerts (%s): %d medicine(s) need attention.", s.now().In(s.location).Format(dateLayout), len(alerts))
	for _, a := range alerts {
		unit := a.Unit
		if unit == "" {
			unit = "unité(s)"
		}
		fmt.Fprintf(&b, "\n- %s: %d %s [%s]", a.Name, a.CurrentQuantity, unit, a.Status)
		if a.ExpiryDate != nil {
			label := "expires"
			if a.Expired {
				label = "expired"
			}
			fmt.Fprintf(&b, " %s %s", label, a.ExpiryDate.In(s.location).Format(dateLayout))
		}
	}
	return b.String()
}

// SendDigest scans the inventory and sends the digest to the configured
// recipient. Nothing is sent when no medicine needs attention.
func (s *Service) SendDigest(ctx context.Context) (int, error) {
	alerts, err := s.Scan(ctx)
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		s.logger.Info("no stock alerts to send")
		return 0, nil
	}

	req := models.OutboundMessageRequest{To: s.recipient, Message: s.FormatDigest(alerts)}
	if err := s.messaging.SendOutbound(ctx, req); err != nil {
		return 0, fmt.Errorf("send stock alerts: %w", err)
	}

	s.logger.Info("stock alerts sent", zap.Int("alerts", len(alerts)))
	return len(alerts), nil
}

func severity(a models.StockAlert) int {
	switch {
	case a.Expired:
		return 5
	case a.Status == models.StockOutOfStock:
		return 4
	case a.Status == models.StockCritical:
		return 3
	case a.Status == models.StockWarning:
		return 2
	default:
		return 1
	}
}
