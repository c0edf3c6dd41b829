package catalog

// Package catalog loads the storefront catalog file: products with their
// starting stock, and the delivery pricing table.

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog. Amounts are decimal strings ("12.50") so that
// they survive YAML without float rounding.
type File struct {
	Shop     ShopConfig      `yaml:"shop"`
	Delivery DeliveryConfig  `yaml:"delivery"`
	Products []ProductConfig `yaml:"products"`
}

type ShopConfig struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

type DeliveryConfig struct {
	FreeThreshold string                        `yaml:"free_threshold"`
	DefaultType   string                        `yaml:"default_type"`
	Types         map[string]DeliveryTypeConfig `yaml:"types"`
}

type DeliveryTypeConfig struct {
	Label string `yaml:"label"`
	Cost  string `yaml:"cost"`
}

type ProductConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Images      []string `yaml:"images"`
	Price       string   `yaml:"price"`
	Stock       int      `yaml:"stock"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &file, nil
}

func (p *Parser) ParseFromString(content string) (*File, error) {
	return p.Parse([]byte(content))
}
