package state

import "beanstalk/native/sun"

var shipmentRoutesKey = []byte("sun/routes")

// ShipmentRoutes returns the stored shipment routes in order.
func (m *Manager) ShipmentRoutes() ([]sun.Route, error) {
	var routes []sun.Route
	if err := m.KVGetList(shipmentRoutesKey, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

func (m *Manager) PutShipmentRoutes(routes []sun.Route) error {
	if len(routes) == 0 {
		return m.KVDelete(shipmentRoutesKey)
	}
	return m.KVPut(shipmentRoutesKey, routes)
}
