package state

import (
	"github.com/holiman/uint256"

	"beanstalk/native/market"
)

func (m *Manager) GetListing(fieldID uint64, index *uint256.Int) (*market.Listing, error) {
	return getRecord[market.Listing](m, ListingKey(fieldID, index))
}

func (m *Manager) PutListing(l *market.Listing) error {
	cp := l.Clone()
	return m.KVPut(ListingKey(cp.FieldID, cp.Index), cp)
}

func (m *Manager) DeleteListing(fieldID uint64, index *uint256.Int) error {
	return m.KVDelete(ListingKey(fieldID, index))
}
