package types

import (
	"fmt"
	"strconv"
	"strings"
)

func GetPayloadName(height uint64, hashHex string) string {
	return fmt.Sprintf("payload_h%d_%s", height, hashHex)
}

func GetArchiveBundleName(startHeight, endHeight uint64) string {
	return fmt.Sprintf("blocks_s%d_e%d", startHeight, endHeight)
}

func ParseArchiveBundleName(bundleName string) (startHeight, endHeight uint64, err error) {
	parts := strings.Split(bundleName, "_")
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("invalid bundle name %s", bundleName)
	}
	startHeight, err = strconv.ParseUint(parts[1][1:], 10, 64)
	if err != nil {
		return
	}
	endHeight, err = strconv.ParseUint(parts[2][1:], 10, 64)
	if err != nil {
		return
	}
	return
}
