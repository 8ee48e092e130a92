package carbon

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CarbonCreditABI is the fixed interface of the CarbonCreditNFT contract.
const CarbonCreditABI = `[
  {"type":"function","name":"mintCarbonCredit","stateMutability":"nonpayable","inputs":[
    {"name":"to","type":"address"},
    {"name":"carbonAmount","type":"uint256"},
    {"name":"projectName","type":"string"},
    {"name":"location","type":"string"},
    {"name":"expiryDate","type":"uint256"},
    {"name":"tokenURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"listForSale","stateMutability":"nonpayable","inputs":[
    {"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"removeFromSale","stateMutability":"nonpayable","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"buyCarbonCredit","stateMutability":"payable","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"retireCarbonCredit","stateMutability":"nonpayable","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"addVerifier","stateMutability":"nonpayable","inputs":[
    {"name":"verifier","type":"address"}],"outputs":[]},
  {"type":"function","name":"getTokensByOwner","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getTokensForSale","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getCarbonCredit","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[
      {"name":"tokenId","type":"uint256"},
      {"name":"carbonAmount","type":"uint256"},
      {"name":"projectName","type":"string"},
      {"name":"location","type":"string"},
      {"name":"issuanceDate","type":"uint256"},
      {"name":"expiryDate","type":"uint256"},
      {"name":"verifier","type":"address"},
      {"name":"isRetired","type":"bool"},
      {"name":"price","type":"uint256"},
      {"name":"isForSale","type":"bool"}]}]},
  {"type":"function","name":"tokenURI","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[
    {"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"authorizedVerifiers","stateMutability":"view","inputs":[
    {"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"CarbonCreditMinted","anonymous":false,"inputs":[
    {"name":"tokenId","type":"uint256","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"carbonAmount","type":"uint256","indexed":false},
    {"name":"projectName","type":"string","indexed":false}]},
  {"type":"event","name":"CarbonCreditListed","anonymous":false,"inputs":[
    {"name":"tokenId","type":"uint256","indexed":true},
    {"name":"price","type":"uint256","indexed":false}]},
  {"type":"event","name":"CarbonCreditSold","anonymous":false,"inputs":[
    {"name":"tokenId","type":"uint256","indexed":true},
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"price","type":"uint256","indexed":false}]},
  {"type":"event","name":"CarbonCreditRetired","anonymous":false,"inputs":[
    {"name":"tokenId","type":"uint256","indexed":true},
    {"name":"owner","type":"address","indexed":true}]}
]`

// Method and event names.
const (
	MethodMint          = "mintCarbonCredit"
	MethodList          = "listForSale"
	MethodUnlist        = "removeFromSale"
	MethodBuy           = "buyCarbonCredit"
	MethodRetire        = "retireCarbonCredit"
	MethodAddVerifier   = "addVerifier"
	MethodTokensByOwner = "getTokensByOwner"
	MethodTokensForSale = "getTokensForSale"
	MethodGetCredit     = "getCarbonCredit"
	MethodTokenURI      = "tokenURI"
	MethodOwnerOf       = "ownerOf"
	MethodBalanceOf     = "balanceOf"
	MethodIsVerifier    = "authorizedVerifiers"
	MethodContractOwner = "owner"
	EventMinted         = "CarbonCreditMinted"
	EventListed         = "CarbonCreditListed"
	EventSold           = "CarbonCreditSold"
	EventRetired        = "CarbonCreditRetired"
)

// ParsedABI is CarbonCreditABI parsed once at init.
var ParsedABI = mustParse(CarbonCreditABI)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("carbon: invalid ABI: " + err.Error())
	}
	return parsed
}
