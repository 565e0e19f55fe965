package licensing

import "sort"

// Product identifies an integrable product
type Product string

const (
	ProductChatbot  Product = "chatbot"
	ProductOutreach Product = "outreach"
	ProductSetup    Product = "setup"
)

// productTags maps each catalogued product to the short tag that prefixes its keys
var productTags = map[Product]string{
	ProductChatbot:  "cb",
	ProductOutreach: "or",
	ProductSetup:    "su",
}

// ParseProduct validates that s names a catalogued product
func ParseProduct(s string) (Product, error) {
	p := Product(s)
	if _, ok := productTags[p]; !ok {
		return "", ErrUnknownProduct.WithMessage("Unknown product: " + s)
	}
	return p, nil
}

// Tag returns the key prefix for the product
func (p Product) Tag() string {
	return productTags[p]
}

// Catalogue returns all known products in stable order
func Catalogue() []Product {
	out := make([]Product, 0, len(productTags))
	for p := range productTags {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ProductSet is an ordered, duplicate-free set of products
type ProductSet []Product

// NewProductSet builds a set from raw identifiers, rejecting unknown products
func NewProductSet(raw []string) (ProductSet, error) {
	set := make(ProductSet, 0, len(raw))
	for _, r := range raw {
		p, err := ParseProduct(r)
		if err != nil {
			return nil, err
		}
		set = set.With(p)
	}
	return set, nil
}

// Contains reports whether p is in the set
func (s ProductSet) Contains(p Product) bool {
	for _, x := range s {
		if x == p {
			return true
		}
	}
	return false
}

// With returns the set including p
func (s ProductSet) With(p Product) ProductSet {
	if s.Contains(p) {
		return s
	}
	out := append(ProductSet{}, s...)
	out = append(out, p)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Without returns the set excluding p
func (s ProductSet) Without(p Product) ProductSet {
	out := make(ProductSet, 0, len(s))
	for _, x := range s {
		if x != p {
			out = append(out, x)
		}
	}
	return out
}

// Strings returns the raw identifiers
func (s ProductSet) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = string(p)
	}
	return out
}
