package intentstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// Option defines connection options for the PostgreSQL draft store.
type Option struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// draftRow is the persisted shape of one session's pending intent. Decimal
// fields are stored as text to keep exact values across the round trip.
type draftRow struct {
	SessionID   string    `gorm:"column:session_id;primaryKey"`
	IntentID    string    `gorm:"column:intent_id"`
	Symbol      string    `gorm:"column:symbol"`
	Side        string    `gorm:"column:side"`
	Qty         string    `gorm:"column:qty"`
	OrderType   string    `gorm:"column:order_type"`
	LimitPrice  string    `gorm:"column:limit_price"`
	StopPrice   string    `gorm:"column:stop_price"`
	TimeInForce string    `gorm:"column:time_in_force"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (draftRow) TableName() string {
	return "order_draft_intents"
}

// Postgres stores one draft intent per session in PostgreSQL, so an
// interrupted entry survives process restarts.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres connects and migrates the draft table.
func NewPostgres(option Option) (*Postgres, error) {
	connString, err := option.dsn()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{}
	}

	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres draft store")
	}

	if err := db.AutoMigrate(&draftRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate draft table")
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Save(ctx context.Context, sessionID string, intent model.OrderIntent) error {
	row := draftRow{
		SessionID:   sessionID,
		IntentID:    intent.ID,
		Symbol:      intent.Form.Symbol,
		Side:        intent.Form.Side.String(),
		Qty:         intent.Form.Qty.String(),
		OrderType:   intent.Form.Type.String(),
		LimitPrice:  intent.Form.LimitPrice.String(),
		StopPrice:   intent.Form.StopPrice.String(),
		TimeInForce: intent.Form.TimeInForce.String(),
		CreatedAt:   intent.CreatedAt,
		UpdatedAt:   time.Now(),
	}

	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "save draft intent")
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, sessionID string) (model.OrderIntent, bool, error) {
	var row draftRow
	err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.OrderIntent{}, false, nil
	}
	if err != nil {
		return model.OrderIntent{}, false, errors.Wrap(err, "load draft intent")
	}

	intent, err := row.toIntent()
	if err != nil {
		return model.OrderIntent{}, false, err
	}
	return intent, true, nil
}

func (p *Postgres) Delete(ctx context.Context, sessionID string) error {
	err := p.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&draftRow{}).Error
	if err != nil {
		return errors.Wrap(err, "delete draft intent")
	}
	return nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r draftRow) toIntent() (model.OrderIntent, error) {
	side, ok := enum.ParseOrderSide(r.Side)
	if !ok {
		return model.OrderIntent{}, errors.New("decode draft side: " + r.Side)
	}
	orderType, ok := enum.ParseOrderType(r.OrderType)
	if !ok {
		return model.OrderIntent{}, errors.New("decode draft order type: " + r.OrderType)
	}
	tif, ok := enum.ParseOrderTimeInForce(r.TimeInForce)
	if !ok {
		return model.OrderIntent{}, errors.New("decode draft time in force: " + r.TimeInForce)
	}
	qty, err := decimal.NewFromString(r.Qty)
	if err != nil {
		return model.OrderIntent{}, errors.Wrap(err, "decode draft qty")
	}
	limitPrice, err := decimal.NewFromString(r.LimitPrice)
	if err != nil {
		return model.OrderIntent{}, errors.Wrap(err, "decode draft limit price")
	}
	stopPrice, err := decimal.NewFromString(r.StopPrice)
	if err != nil {
		return model.OrderIntent{}, errors.Wrap(err, "decode draft stop price")
	}

	return model.OrderIntent{
		ID: r.IntentID,
		Form: model.OrderForm{
			Symbol:      r.Symbol,
			Side:        side,
			Qty:         qty,
			Type:        orderType,
			LimitPrice:  limitPrice,
			StopPrice:   stopPrice,
			TimeInForce: tif,
		},
		CreatedAt: r.CreatedAt,
	}, nil
}

func (opt Option) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	if len(query) != 0 {
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}
