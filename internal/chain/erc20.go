package chain

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	transferSelector  = []byte{0xa9, 0x05, 0x9c, 0xbb}
	balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

	transferEventSignature = gethcrypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

func encodeTransfer(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

func encodeBalanceOf(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	return data
}

// decodeTransfer extracts the recipient and amount of an ERC-20 transfer call.
func decodeTransfer(data []byte) (common.Address, *big.Int, bool) {
	if len(data) != 4+32+32 || !bytes.Equal(data[:4], transferSelector) {
		return common.Address{}, nil, false
	}
	to := common.BytesToAddress(data[4:36])
	amount := new(big.Int).SetBytes(data[36:68])
	return to, amount, true
}
