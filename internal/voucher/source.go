package voucher

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCoupon wraps validation failures of a coupon list.
var ErrInvalidCoupon = errors.New("voucher invalid definition")

var validate = validator.New()

// StaticSource serves coupons from an in-memory list keyed by normalised code.
type StaticSource struct {
	byCode map[string]Coupon
}

// NewStaticSource validates coupons and indexes them. Codes must be unique
// case-insensitively.
func NewStaticSource(coupons []Coupon) (*StaticSource, error) {
	src := &StaticSource{byCode: make(map[string]Coupon, len(coupons))}
	for _, c := range coupons {
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCoupon, c.ID, err)
		}
		if err := c.Effect.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCoupon, c.ID, err)
		}
		key := NormalizeCode(c.Code)
		if _, dup := src.byCode[key]; dup {
			return nil, fmt.Errorf("%w: duplicate code %s", ErrInvalidCoupon, key)
		}
		src.byCode[key] = c
	}
	return src, nil
}

// CouponByCode implements CouponSource.
func (s *StaticSource) CouponByCode(_ context.Context, code string) (Coupon, error) {
	if s == nil {
		return Coupon{}, ErrCouponNotFound
	}
	c, ok := s.byCode[NormalizeCode(code)]
	if !ok {
		return Coupon{}, ErrCouponNotFound
	}
	c.Categories = append([]string(nil), c.Categories...)
	return c, nil
}

type couponFile struct {
	Coupons []Coupon `yaml:"coupons"`
}

// LoadFile reads a YAML coupon list into a StaticSource.
func LoadFile(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("voucher: read %s: %w", path, err)
	}
	var file couponFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("voucher: decode yaml: %w", err)
	}
	return NewStaticSource(file.Coupons)
}
