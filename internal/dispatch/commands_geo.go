package dispatch

import (
	"strconv"
	"strings"

	"github.com/memnode/memnode/internal/protocol"
	"github.com/memnode/memnode/internal/store"
)

func (s *Server) cmdGeoAdd(args []string) protocol.Value {
	if len(args) != 5 {
		return errReply("ERR wrong number of arguments for 'geoadd' command")
	}
	lon, err1 := strconv.ParseFloat(args[2], 64)
	lat, err2 := strconv.ParseFloat(args[3], 64)
	if err1 != nil || err2 != nil {
		return errReply("ERR value is not a valid float")
	}
	if !store.ValidateCoords(lon, lat) {
		return errReply("ERR " + store.ErrInvalidCoords(lon, lat).Error())
	}

	z := s.SortedSets.GetOrCreate(args[1])
	score := store.GeoEncode(lon, lat)
	added := z.Add(args[4], score)

	s.afterWrite(args)

	if added {
		return protocol.Integer(1)
	}
	return protocol.Integer(0)
}

func (s *Server) cmdGeoPos(args []string) protocol.Value {
	if len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'geopos' command")
	}
	z, ok := s.SortedSets.Get(args[1])
	if !ok {
		return protocol.Array(protocol.NullArray())
	}
	score, ok := z.Score(args[2])
	if !ok {
		return protocol.Array(protocol.NullArray())
	}
	lon, lat := store.GeoDecode(score)
	return protocol.Array(protocol.Array(
		protocol.Bulk(strconv.FormatFloat(lon, 'f', -1, 64)),
		protocol.Bulk(strconv.FormatFloat(lat, 'f', -1, 64)),
	))
}

func (s *Server) cmdGeoDist(args []string) protocol.Value {
	if len(args) != 4 {
		return errReply("ERR wrong number of arguments for 'geodist' command")
	}
	z, ok := s.SortedSets.Get(args[1])
	if !ok {
		return protocol.NullBulk()
	}
	score1, ok1 := z.Score(args[2])
	score2, ok2 := z.Score(args[3])
	if !ok1 || !ok2 {
		return protocol.NullBulk()
	}
	lon1, lat1 := store.GeoDecode(score1)
	lon2, lat2 := store.GeoDecode(score2)
	dist := store.HaversineMeters(lon1, lat1, lon2, lat2)
	return protocol.Bulk(strconv.FormatFloat(dist, 'f', 4, 64))
}

func (s *Server) cmdGeoSearch(args []string) protocol.Value {
	// GEOSEARCH key FROMLONLAT lon lat BYRADIUS radius unit
	if len(args) != 8 {
		return errReply("ERR wrong number of arguments for 'geosearch' command")
	}
	if strings.ToUpper(args[2]) != "FROMLONLAT" || strings.ToUpper(args[5]) != "BYRADIUS" {
		return errReply("ERR syntax error")
	}
	lon, err1 := strconv.ParseFloat(args[3], 64)
	lat, err2 := strconv.ParseFloat(args[4], 64)
	radius, err3 := strconv.ParseFloat(args[6], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return errReply("ERR value is not a valid float")
	}
	unitMultiplier, err := store.GeoUnitToMeters(args[7])
	if err != nil {
		return errReply("ERR " + err.Error())
	}
	radiusMeters := radius * unitMultiplier

	z, ok := s.SortedSets.Get(args[1])
	if !ok {
		return protocol.Array()
	}

	var out []protocol.Value
	for member, score := range z.Members() {
		mLon, mLat := store.GeoDecode(score)
		if store.HaversineMeters(lon, lat, mLon, mLat) <= radiusMeters {
			out = append(out, protocol.Bulk(member))
		}
	}
	return protocol.Array(out...)
}
